package server

import (
	"net/http"
	"net/netip"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/jrsteele09/go-identity-server/apps"
	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Deps are the core services the HTTP boundary drives.
type Deps struct {
	Developers *auth.Issuer
	Users      *auth.Issuer
	Apps       *apps.Service
}

type Server struct {
	env        string // Environment (e.g., "DEV", "production")
	mux        *http.ServeMux
	handler    http.Handler
	routes     []string
	config     config.Config
	developers *auth.Issuer
	users      *auth.Issuer
	apps       *apps.Service
	csrf       *csrf.Protection
	refreshTTL time.Duration

	trustedProxies []netip.Prefix
}

func New(config config.Config, deps Deps) (*Server, error) {
	if deps.Developers == nil || deps.Users == nil || deps.Apps == nil {
		return nil, errors.New("[server.New] developer issuer, user issuer and apps service are required")
	}

	s := &Server{
		env:        config.GetEnv(),
		mux:        http.NewServeMux(),
		config:     config,
		developers: deps.Developers,
		users:      deps.Users,
		apps:       deps.Apps,
		csrf:       csrf.New(),
		refreshTTL: config.GetRefreshTokenExpiry(),

		trustedProxies: config.GetTrustedProxies(),
	}
	for _, origin := range config.GetAllowedOrigins().List() {
		if origin == "*" {
			continue
		}
		if err := s.csrf.AddTrustedOrigin(origin); err != nil {
			return nil, errors.Wrapf(err, "[server.New] trusted origin %q", origin)
		}
	}

	s.initRoutes()
	s.logRoutes()
	s.handler = s.corsHandler(s.mux)

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// corsHandler answers preflights and decorates responses for the configured browser origins.
func (s *Server) corsHandler(h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.config.GetAllowedOrigins().List(),
		AllowedMethods:   s.config.GetAllowedMethods(),
		AllowedHeaders:   s.config.GetAllowedHeaders(),
		AllowCredentials: true, // refresh_token cookie
		MaxAge:           86400,
	}).Handler(h)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", paintMethod(method), path)
}
