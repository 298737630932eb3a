package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/security"
	"github.com/jrsteele09/go-identity-server/internal/telemetry"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultTTL = 10 * time.Minute

	codeMin   = 100000
	codeRange = 900000
)

type Engine struct {
	repo    Repo
	hasher  *security.Hasher
	ttl     time.Duration
	nowTime func() time.Time
}

type EngineOption func(*Engine)

// WithTTL sets how long a generated code stays valid
func WithTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) EngineOption {
	return func(e *Engine) {
		e.nowTime = nowFunc
	}
}

func NewEngine(repo Repo, hasher *security.Hasher, options ...EngineOption) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("[otp.NewEngine] repo is required")
	}
	if hasher == nil {
		return nil, errors.New("[otp.NewEngine] hasher is required")
	}
	e := &Engine{
		repo:    repo,
		hasher:  hasher,
		ttl:     DefaultTTL,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// Generate stores a new code for the principal and returns it in the clear.
// The raw code must go to the delivery channel and nowhere else.
func (e *Engine) Generate(ctx context.Context, principalID string, kind principals.Kind, purpose Purpose, destination string) (string, error) {
	if !purpose.Valid() {
		return "", errors.Wrapf(apperrors.ErrInvalidRequest, "[Engine.Generate] unknown purpose %q", purpose)
	}
	key := Key{PrincipalID: principalID, PrincipalKind: kind, Purpose: purpose}
	now := e.nowTime()

	if n, err := e.repo.DeleteUsedAndExpired(ctx, key, now); err != nil {
		if errors.Is(err, apperrors.ErrContextMissing) {
			return "", err
		}
		log.Warn().Err(err).Str("principal_id", principalID).Msg("Failed to clear stale one-time codes")
	} else if n > 0 {
		log.Debug().Int("count", n).Str("principal_id", principalID).Msg("Cleared stale one-time codes")
	}

	code, err := randomCode()
	if err != nil {
		return "", errors.Wrap(err, "[Engine.Generate] random code")
	}
	hash, err := e.hasher.Hash(code)
	if err != nil {
		return "", errors.Wrap(err, "[Engine.Generate] hash code")
	}

	record := &Record{
		PrincipalID:   principalID,
		PrincipalKind: kind,
		Purpose:       purpose,
		CodeHash:      hash,
		Destination:   destination,
		ExpiresAt:     now.Add(e.ttl),
		CreatedAt:     now,
	}
	if err := e.repo.Create(ctx, record); err != nil {
		return "", errors.Wrap(err, "[Engine.Generate] create")
	}

	telemetry.GetMetrics().OTPsIssuedTotal.Add(ctx, 1, purposeAttr(purpose))
	log.Debug().Str("principal_id", principalID).Str("purpose", string(purpose)).Msg("Issued one-time code")
	return code, nil
}

// Verify reports whether code matches the newest live record and consumes it if so.
// Errors are storage failures only; a wrong, expired or already used code is simply false.
func (e *Engine) Verify(ctx context.Context, principalID string, kind principals.Kind, purpose Purpose, code string) (bool, error) {
	key := Key{PrincipalID: principalID, PrincipalKind: kind, Purpose: purpose}

	record, err := e.repo.FindLatestActive(ctx, key, e.nowTime())
	if errors.Is(err, apperrors.ErrNotFound) {
		e.rejected(ctx, purpose)
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Engine.Verify] find")
	}

	if !e.hasher.Check(record.CodeHash, code) {
		e.rejected(ctx, purpose)
		return false, nil
	}

	consumed, err := e.repo.MarkUsed(ctx, record.ID)
	if err != nil {
		return false, errors.Wrap(err, "[Engine.Verify] mark used")
	}
	if !consumed {
		e.rejected(ctx, purpose)
		return false, nil
	}

	telemetry.GetMetrics().OTPsVerifiedTotal.Add(ctx, 1, purposeAttr(purpose))
	return true, nil
}

// DeleteExpired removes every expired record, used or not, across all tenants.
func (e *Engine) DeleteExpired(ctx context.Context) (int, error) {
	n, err := e.repo.DeleteExpired(ctx, e.nowTime())
	if err != nil {
		return 0, errors.Wrap(err, "[Engine.DeleteExpired]")
	}
	telemetry.GetMetrics().OTPsSweptTotal.Add(ctx, int64(n))
	return n, nil
}

func (e *Engine) rejected(ctx context.Context, purpose Purpose) {
	telemetry.GetMetrics().OTPsRejectedTotal.Add(ctx, 1, purposeAttr(purpose))
}

func purposeAttr(purpose Purpose) metric.AddOption {
	return metric.WithAttributes(attribute.String("purpose", string(purpose)))
}

// randomCode draws uniformly from [100000, 999999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
