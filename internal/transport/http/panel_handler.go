// Package http exposes the panel operations over the loopback HTTP
// API consumed by the operator's view.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"rshieldcli/internal/auth"
	apierrors "rshieldcli/internal/errors"
	"rshieldcli/internal/panel"
)

// PanelHandler handles panel HTTP requests
type PanelHandler struct {
	panel    *panel.Panel
	logger   *slog.Logger
	validate *validator.Validate
}

// NewPanelHandler creates a panel handler
func NewPanelHandler(p *panel.Panel, logger *slog.Logger) *PanelHandler {
	return &PanelHandler{
		panel:    p,
		logger:   logger.With(slog.String("handler", "panel")),
		validate: validator.New(),
	}
}

// Routes returns a chi router for the panel endpoints
func (h *PanelHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/status", h.Status)
	r.Post("/auth", h.SubmitAuth)
	r.Post("/auth/mode", h.SetMode)
	r.Post("/auth/logout", h.Logout)
	r.Post("/license/activate", h.ActivateLicense)
	r.Post("/link/start", h.StartLink)

	return r
}

// authRequest carries a credential submission
type authRequest struct {
	Mode     string `json:"mode" validate:"omitempty,oneof=login register"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// modeRequest switches the auth form mode
type modeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=login register"`
}

// activateRequest carries a license key to redeem
type activateRequest struct {
	Key string `json:"key" validate:"required"`
}

// authResponse reports a submission outcome, navigation included
type authResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Navigate string `json:"navigate,omitempty"`
}

// actionResponse reports a simple operation outcome
type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// linkResponse carries the one-time linking code
type linkResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
}

// Status returns the session-gated view state
func (h *PanelHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.panel.Status())
}

// SubmitAuth runs a login or register submission
func (h *PanelHandler) SubmitAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Mode != "" {
		h.panel.SetMode(auth.Mode(req.Mode))
	}

	outcome, err := h.panel.SubmitAuth(r.Context(), req.Email, req.Password)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, authResponse{
		Success:  true,
		Message:  outcome.Message,
		Navigate: outcome.Navigate,
	})
}

// SetMode toggles the auth form between login and register
func (h *PanelHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.panel.SetMode(auth.Mode(req.Mode))
	render.JSON(w, r, actionResponse{Success: true})
}

// Logout signs the operator out
func (h *PanelHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.SignOut(r.Context()); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, actionResponse{Success: true, Message: panel.MsgSignedOut})
}

// ActivateLicense redeems the submitted license key
func (h *PanelHandler) ActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.panel.SetKeyDraft(req.Key)
	if err := h.panel.ActivateKey(r.Context()); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, actionResponse{Success: true, Message: panel.MsgLicenseActivated})
}

// StartLink begins the platform linking handshake
func (h *PanelHandler) StartLink(w http.ResponseWriter, r *http.Request) {
	code, err := h.panel.StartLink(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, linkResponse{Success: true, Code: code})
}

// decode parses and validates a JSON request body. On failure it
// renders a validation error and returns false.
func (h *PanelHandler) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := render.DecodeJSON(r.Body, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.New(http.StatusBadRequest, apierrors.CodeValidationFailed, "invalid request body")))
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		h.logger.DebugContext(r.Context(), "request validation failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(validationError(err)))
		return false
	}
	return true
}

// validationError maps a validator failure onto the error envelope,
// naming the first offending field when one is known.
func validationError(err error) *apierrors.APIError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apierrors.ValidationError(strings.ToLower(fieldErrs[0].Field()), "request validation failed")
	}
	return apierrors.New(http.StatusBadRequest, apierrors.CodeValidationFailed, "request validation failed")
}

// renderError maps an operation failure onto the response
func (h *PanelHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromError(err)))
}
