package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// writeError maps a core error onto its HTTP status. Server-side failures never echo the error text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidRequest):
		writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrUnauthorized):
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Unauthorized")
		writeJSONError(w, "unauthorized", "invalid or expired credentials", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrForbidden):
		writeJSONError(w, "forbidden", "not permitted", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrNotFound):
		writeJSONError(w, "not_found", "resource not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrConflict):
		writeJSONError(w, "conflict", "resource already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrContextMissing):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Tenant context missing on scoped call")
		writeJSONError(w, "server_error", "internal server error", http.StatusInternalServerError)
	case errors.Is(err, apperrors.ErrDelivery):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Code delivery failed")
		writeJSONError(w, "delivery_failed", "could not deliver verification code", http.StatusInternalServerError)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeJSONError(w, "server_error", "internal server error", http.StatusInternalServerError)
	}
}

// decodeJSON reads a JSON request body into dst. Unknown fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrapf(apperrors.ErrInvalidRequest, "malformed JSON body: %v", err)
	}
	return nil
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, refreshToken string, expiresAt time.Time) {
	maxAge := int(s.refreshTTL.Seconds())
	if !expiresAt.IsZero() {
		maxAge = int(time.Until(expiresAt).Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetCookieSecure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetCookieSecure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
