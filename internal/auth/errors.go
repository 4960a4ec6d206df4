package auth

import (
	"errors"
	"net/http"
)

// Login failures. Callers match them with errors.Is.
var (
	ErrMalformedRequest   = errors.New("malformed request")
	ErrMissingBotCheck    = errors.New("missing bot-check token")
	ErrBotCheckFailed     = errors.New("bot-check failed")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInternal           = errors.New("internal error")
)

// StatusCode maps a login failure to its HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedRequest), errors.Is(err, ErrMissingBotCheck):
		return http.StatusBadRequest
	case errors.Is(err, ErrBotCheckFailed),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the response text for a login failure. Unknown users and
// wrong passwords share one message.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingBotCheck):
		return "Falta la verificación reCAPTCHA"
	case errors.Is(err, ErrMalformedRequest):
		return "Faltan username o password"
	case errors.Is(err, ErrBotCheckFailed):
		return "Verificación reCAPTCHA fallida"
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidCredentials):
		return "Credenciales inválidas"
	default:
		return "Error de autenticación"
	}
}
