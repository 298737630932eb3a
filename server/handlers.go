package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-server/auth"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type messageResponse struct {
	Message string `json:"message"`
}

// accessResponse is what login, verify and refresh return. The refresh token only travels in its cookie.
type accessResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) SignupHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.SignupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		view, err := is.Signup(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func (s *Server) LoginHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		pair, err := is.Login(r.Context(), req, s.clientInfo(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.writePair(w, pair)
	}
}

func (s *Server) RequestOTPHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.OTPRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := is.RequestOTP(r.Context(), req); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "OTP sent to your email"})
	}
}

func (s *Server) VerifyOTPHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.VerifyOTPRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		pair, err := is.VerifyOTP(r.Context(), req, s.clientInfo(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.writePair(w, pair)
	}
}

func (s *Server) RefreshHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := refreshCookie(r)
		if raw == "" {
			writeError(w, r, errors.Wrap(apperrors.ErrUnauthorized, "missing refresh_token cookie"))
			return
		}
		pair, err := is.Refresh(r.Context(), raw, s.clientInfo(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.writePair(w, pair)
	}
}

func (s *Server) LogoutHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, r, apperrors.ErrUnauthorized)
			return
		}
		if err := is.Logout(r.Context(), claims, refreshCookie(r)); err != nil {
			writeError(w, r, err)
			return
		}
		s.clearRefreshCookie(w)
		writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
	}
}

func (s *Server) LogoutAllHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, r, apperrors.ErrUnauthorized)
			return
		}
		n, err := is.LogoutAll(r.Context(), claims)
		if err != nil {
			writeError(w, r, err)
			return
		}
		log.Info().Str("principal_id", claims.Subject).Int("count", n).Msg("Revoked all sessions")
		s.clearRefreshCookie(w)
		writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
	}
}

func (s *Server) ForgotPasswordHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.OTPRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := is.ForgotPassword(r.Context(), req); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset code sent to your email"})
	}
}

func (s *Server) ResetPasswordHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.ResetPasswordRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := is.ResetPassword(r.Context(), req); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated"})
	}
}

func (s *Server) MeHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, r, apperrors.ErrUnauthorized)
			return
		}
		view, err := is.Me(r.Context(), claims)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) ListSessionsHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, r, apperrors.ErrUnauthorized)
			return
		}
		views, err := is.Sessions(r.Context(), claims)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func (s *Server) RevokeSessionHandler(is *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, r, apperrors.ErrUnauthorized)
			return
		}
		if err := is.RevokeSession(r.Context(), claims, r.PathValue("id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writePair sets the refresh cookie when the pair carries a refresh token and returns the access token.
func (s *Server) writePair(w http.ResponseWriter, pair *token.Pair) {
	if pair.RefreshToken != "" {
		s.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	}
	writeJSON(w, http.StatusOK, accessResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   pair.ExpiresIn,
	})
}
