package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rshieldcli/internal/config"
	apierrors "rshieldcli/internal/errors"
)

// fakeProviderServer simulates the identity service REST API
type fakeProviderServer struct {
	*httptest.Server
	mintCalls    int
	revokeToken  bool
	rejectSignIn string // error message to reject sign-in with, empty accepts
}

func newFakeProviderServer(t *testing.T) *fakeProviderServer {
	t.Helper()
	fake := &fakeProviderServer{}
	fake.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/accounts:signIn":
			if fake.rejectSignIn != "" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": fake.rejectSignIn})
				return
			}
			var req credentialsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(sessionResponse{
				UID:          "uid-1",
				Email:        req.Email,
				RefreshToken: "refresh-1",
			})
		case "/v1/accounts:register":
			var req credentialsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(sessionResponse{
				UID:          "uid-2",
				Email:        req.Email,
				RefreshToken: "refresh-2",
			})
		case "/v1/token":
			fake.mintCalls++
			if fake.revokeToken {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "token revoked"})
				return
			}
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "bearer-xyz", ExpiresIn: 3600})
		case "/v1/accounts:sendVerification", "/v1/accounts:signOut":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fake.Server.Close)
	return fake
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(config.IdentityConfig{
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
	}, slog.Default())
}

func TestClient_SignIn(t *testing.T) {
	fake := newFakeProviderServer(t)
	client := newTestClient(t, fake.URL)

	session, err := client.SignIn(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", session.UID)
	assert.Equal(t, "op@example.com", session.Email)
}

func TestClient_SignIn_ProviderMessageVerbatim(t *testing.T) {
	fake := newFakeProviderServer(t)
	fake.rejectSignIn = "wrong password"
	client := newTestClient(t, fake.URL)

	_, err := client.SignIn(context.Background(), "op@example.com", "bad")
	require.Error(t, err)

	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeProviderError, apiErr.ErrorCode)
	assert.Equal(t, "wrong password", apiErr.Message)
}

func TestClient_SignIn_TransportError(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	_, err := client.SignIn(context.Background(), "op@example.com", "secret")
	require.Error(t, err)

	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeTransportError, apiErr.ErrorCode)
	assert.Equal(t, "authentication failed", apiErr.Message)
}

func TestClient_TokenMintedFreshPerCall(t *testing.T) {
	fake := newFakeProviderServer(t)
	client := newTestClient(t, fake.URL)

	session, err := client.SignIn(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		token, err := session.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "bearer-xyz", token)
	}
	assert.Equal(t, 3, fake.mintCalls, "every Token call must mint a fresh token")
}

func TestClient_RevokedTokenClearsSession(t *testing.T) {
	fake := newFakeProviderServer(t)
	client := newTestClient(t, fake.URL)

	var emissions []*Session
	unsubscribe := client.OnSessionChange(func(s *Session) {
		emissions = append(emissions, s)
	})
	defer unsubscribe()

	session, err := client.SignIn(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)

	fake.revokeToken = true
	_, err = session.Token(context.Background())
	require.Error(t, err)

	// initial nil, sign-in session, provider-invalidated nil
	require.Len(t, emissions, 3)
	assert.Nil(t, emissions[0])
	assert.Equal(t, session, emissions[1])
	assert.Nil(t, emissions[2])
}

func TestClient_OnSessionChange_InitialEmission(t *testing.T) {
	fake := newFakeProviderServer(t)
	client := newTestClient(t, fake.URL)

	var got []*Session
	unsubscribe := client.OnSessionChange(func(s *Session) { got = append(got, s) })
	defer unsubscribe()

	require.Len(t, got, 1)
	assert.Nil(t, got[0], "initial state before any sign-in is no session")
}

func TestClient_Unsubscribe_StopsEmissions(t *testing.T) {
	fake := newFakeProviderServer(t)
	client := newTestClient(t, fake.URL)

	var count int
	unsubscribe := client.OnSessionChange(func(*Session) { count++ })
	require.Equal(t, 1, count)

	unsubscribe()
	unsubscribe() // second call is a no-op

	_, err := client.SignIn(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "no emissions after unsubscribe")
}

func TestClient_SignOut_EmitsNilSession(t *testing.T) {
	fake := newFakeProviderServer(t)
	client := newTestClient(t, fake.URL)

	session, err := client.SignIn(context.Background(), "op@example.com", "secret")
	require.NoError(t, err)

	var last *Session
	var calls int
	unsubscribe := client.OnSessionChange(func(s *Session) {
		last = s
		calls++
	})
	defer unsubscribe()
	require.Equal(t, 1, calls)
	assert.Equal(t, session, last, "subscriber sees the live session on attach")

	require.NoError(t, client.SignOut(context.Background(), session))
	assert.Equal(t, 2, calls)
	assert.Nil(t, last)
}

func TestClient_ConcurrentWriters_EmissionsFollowStateOrder(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	var mu sync.Mutex
	var last *Session
	unsubscribe := client.OnSessionChange(func(s *Session) {
		mu.Lock()
		last = s
		mu.Unlock()
	})
	defer unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				client.setSession(NewSession(fmt.Sprintf("uid-%d-%d", writer, j), "op@example.com", nil))
			}
		}(i)
	}
	wg.Wait()

	// Deliveries are serialized with the state updates, so whichever
	// session won the final write is also the final emission.
	client.mu.Lock()
	current := client.current
	client.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	assert.Same(t, current, last)
}

func TestClient_Unsubscribe_WaitsForInFlightDelivery(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	unsubscribe := client.OnSessionChange(func(s *Session) {
		calls.Add(1)
		if s != nil {
			entered <- struct{}{}
			<-release
		}
	})

	go client.setSession(NewSession("uid-1", "op@example.com", nil))
	<-entered

	unsubscribed := make(chan struct{})
	go func() {
		unsubscribe()
		close(unsubscribed)
	}()

	select {
	case <-unsubscribed:
		t.Fatal("unsubscribe returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-unsubscribed:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe did not return after delivery finished")
	}

	delivered := calls.Load()
	client.setSession(nil)
	assert.Equal(t, delivered, calls.Load())
}
