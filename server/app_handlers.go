package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-server/apps"
)

type appRequest struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
}

// createAppResponse carries the client secret, which is only ever shown here.
type createAppResponse struct {
	*apps.App
	ClientSecret string `json:"client_secret"`
}

func (s *Server) CreateAppHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		app, secret, err := s.apps.Create(r.Context(), req.Name, req.RedirectURIs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, createAppResponse{App: app, ClientSecret: secret})
	}
}

func (s *Server) ListAppsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.apps.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) GetAppHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, err := s.apps.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, app)
	}
}

func (s *Server) UpdateAppHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		app, err := s.apps.Update(r.Context(), r.PathValue("id"), req.Name, req.RedirectURIs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, app)
	}
}

func (s *Server) DeleteAppHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.apps.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
