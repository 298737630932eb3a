package server

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jrsteele09/go-identity-server/auth"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/pkg/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores parsed access token claims
	ContextKeyClaims ContextKey = "claims"
)

// RequireAuth is middleware that validates a Bearer access token issued by is.
// The request context leaves bound to the token's tenant.
func (s *Server) RequireAuth(is *auth.Issuer) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, r, errors.Wrap(apperrors.ErrUnauthorized, "missing or malformed Authorization header"))
				return
			}

			claims, ctx, err := is.Authenticate(r.Context(), raw)
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireClient resolves the app named by the X-Client-ID header and binds its tenant and app to the request.
func (s *Server) RequireClient() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			clientID := strings.TrimSpace(r.Header.Get(clientIDHeader))
			if clientID == "" {
				writeError(w, r, errors.Wrap(apperrors.ErrUnauthorized, "missing X-Client-ID header"))
				return
			}

			app, err := s.apps.ResolveClient(r.Context(), clientID)
			if errors.Is(err, apperrors.ErrNotFound) {
				writeError(w, r, errors.Wrap(apperrors.ErrUnauthorized, "unknown client"))
				return
			}
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := tenants.WithApp(r.Context(), app.TenantID, app.ID)
			next(w, r.WithContext(ctx))
		}
	}
}

// ClaimsFromContext returns the claims RequireAuth stored on the request.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims, ok && claims != nil
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

// clientInfo describes the caller for the session record.
func (s *Server) clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r, s.trustedProxies),
	}
}

// clientIP returns the peer address unless the peer is a trusted proxy. Behind one, X-Forwarded-For is
// read right to left and the first hop outside the trusted set wins, then X-Real-IP.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !isTrusted(peer, trusted) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !isTrusted(hop, trusted) || i == 0 {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
