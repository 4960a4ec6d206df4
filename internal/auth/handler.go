package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayush/peces-catalog/internal/models"
)

// Authenticator is the login decision the handler delegates to.
type Authenticator interface {
	Authenticate(ctx context.Context, attempt LoginAttempt) (Result, error)
}

// Handler holds auth-related HTTP handlers.
type Handler struct {
	gate      Authenticator
	sessions  SessionStore
	decryptor Decryptor
	log       *zap.Logger
}

// NewHandler wires the login handlers. decryptor may be nil when the
// deployment uses plaintext transport.
func NewHandler(gate Authenticator, sessions SessionStore, decryptor Decryptor, log *zap.Logger) *Handler {
	return &Handler{gate: gate, sessions: sessions, decryptor: decryptor, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// maxLoginBody caps the login request body.
const maxLoginBody = 64 << 10

// Login authenticates the request and opens a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, PublicMessage(ErrMalformedRequest))
		return
	}

	attempt := LoginAttempt{
		EncodedUsername: req.Username,
		EncodedPassword: req.Password,
		BotCheckToken:   req.CaptchaToken,
		RemoteIP:        clientIP(r),
	}
	if h.decryptor != nil && req.EncryptedUser != "" && req.EncryptedPass != "" {
		attempt.EncodedUsername = req.EncryptedUser
		attempt.EncodedPassword = req.EncryptedPass
	}

	res, err := h.gate.Authenticate(r.Context(), attempt)
	if err != nil {
		status := StatusCode(err)
		if status == http.StatusInternalServerError {
			h.log.Error("login failed", zap.Error(err))
		} else {
			h.log.Info("login rejected", zap.String("reason", reason(err)), zap.String("remote_ip", attempt.RemoteIP))
		}
		writeError(w, status, PublicMessage(err))
		return
	}

	sid, err := h.sessions.Create(r.Context(), Principal{Username: res.Username, Role: res.Role})
	if err != nil {
		h.log.Error("session creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error de autenticación")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.TTL().Seconds()),
	})

	h.log.Info("login ok", zap.String("username", res.Username), zap.String("role", string(res.Role)))
	writeJSON(w, http.StatusOK, models.LoginResponse{Role: res.Role})
}

// Logout destroys the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.log.Warn("session delete failed", zap.Error(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the currently authenticated principal.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PublicKey serves the PEM public key callers encrypt credentials with.
func (h *Handler) PublicKey(w http.ResponseWriter, r *http.Request) {
	if h.decryptor == nil {
		writeError(w, http.StatusNotFound, "encrypted login disabled")
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Write(h.decryptor.PublicKeyPEM())
}

func reason(err error) string {
	for _, e := range []error{ErrMissingBotCheck, ErrMalformedRequest, ErrBotCheckFailed, ErrUserNotFound, ErrInvalidCredentials} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "unknown"
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
