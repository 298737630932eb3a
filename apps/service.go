package apps

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/security"
	"github.com/rs/zerolog/log"
)

const (
	clientIDBytes     = 16
	clientSecretBytes = 32
)

// Service provides app CRUD for the developer bound to the request.
type Service struct {
	repo   Repo
	hasher *security.Hasher
}

func NewService(repo Repo, hasher *security.Hasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

// Create registers an app and returns it with its client secret. The secret is not retrievable later.
func (s *Service) Create(ctx context.Context, name string, redirectURIs []string) (*App, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", errors.Wrapf(errors.ErrInvalidRequest, "[apps.Create] name is required")
	}
	if err := ValidateRedirectURIs(redirectURIs); err != nil {
		return nil, "", err
	}

	clientID, err := randomHex(clientIDBytes)
	if err != nil {
		return nil, "", errors.Wrapf(err, "[apps.Create] client id")
	}
	secret, err := randomHex(clientSecretBytes)
	if err != nil {
		return nil, "", errors.Wrapf(err, "[apps.Create] client secret")
	}
	secretHash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, "", errors.Wrapf(err, "[apps.Create] hash secret")
	}

	app := &App{
		Name:         name,
		ClientID:     clientID,
		SecretHash:   secretHash,
		RedirectURIs: redirectURIs,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, "", errors.Wrapf(err, "[apps.Create]")
	}

	log.Info().Str("app_id", app.ID).Str("tenant_id", app.TenantID).Msg("App created")
	return app, secret, nil
}

func (s *Service) Get(ctx context.Context, id string) (*App, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*App, error) {
	return s.repo.List(ctx)
}

// Update changes the name and redirect URIs. Empty values leave the field unchanged.
func (s *Service) Update(ctx context.Context, id, name string, redirectURIs []string) (*App, error) {
	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		app.Name = name
	}
	if redirectURIs != nil {
		if err := ValidateRedirectURIs(redirectURIs); err != nil {
			return nil, err
		}
		app.RedirectURIs = redirectURIs
	}
	if err := s.repo.Update(ctx, app); err != nil {
		return nil, errors.Wrapf(err, "[apps.Update]")
	}
	return app, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ResolveClient finds the app for a client id. It is the only unscoped lookup.
func (s *Service) ResolveClient(ctx context.Context, clientID string) (*App, error) {
	if clientID == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "client id is required")
	}
	return s.repo.FindByClientID(ctx, clientID)
}

// VerifySecret reports whether secret is the app's client secret.
func (s *Service) VerifySecret(app *App, secret string) bool {
	return s.hasher.Check(app.SecretHash, secret)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
