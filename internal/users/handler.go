package users

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/medstore/internal/auth"
)

type Handler struct {
	service      *Service
	secureCookie bool
	logger       *slog.Logger
}

func NewHandler(service *Service, secureCookie bool, logger *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.handleError(w, err, "failed to register user")
		return
	}

	h.setCookie(w, session.Token, session.ExpiresAt)
	h.writeJSON(w, http.StatusCreated, session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleError(w, err, "failed to log in")
		return
	}

	h.setCookie(w, session.Token, session.ExpiresAt)
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	u, err := h.service.Me(r.Context(), caller.UserID)
	if err != nil {
		h.handleError(w, err, "failed to load user", "user_id", caller.UserID)
		return
	}

	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var p ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), caller.UserID, p)
	if err != nil {
		h.handleError(w, err, "failed to update profile", "user_id", caller.UserID)
		return
	}

	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) setCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) handleError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrEmailTaken):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(msg, append(args, "error", err)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
