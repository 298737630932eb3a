package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for credential flows
type Metrics struct {
	LoginsTotal        metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter

	OTPsIssuedTotal   metric.Int64Counter
	OTPsVerifiedTotal metric.Int64Counter
	OTPsRejectedTotal metric.Int64Counter
	OTPsSweptTotal    metric.Int64Counter

	SessionsCreatedTotal metric.Int64Counter
	SessionsRevokedTotal metric.Int64Counter
	RefreshesTotal       metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Call after InitTelemetry so the instruments bind to the real provider.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.LoginsTotal, _ = meter.Int64Counter(
		"identity.logins.total",
		metric.WithDescription("Successful password or OTP logins"),
		metric.WithUnit("{login}"),
	)
	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"identity.logins.failures.total",
		metric.WithDescription("Rejected login attempts"),
		metric.WithUnit("{login}"),
	)

	m.OTPsIssuedTotal, _ = meter.Int64Counter(
		"identity.otps.issued.total",
		metric.WithDescription("One-time codes generated"),
		metric.WithUnit("{code}"),
	)
	m.OTPsVerifiedTotal, _ = meter.Int64Counter(
		"identity.otps.verified.total",
		metric.WithDescription("One-time codes accepted"),
		metric.WithUnit("{code}"),
	)
	m.OTPsRejectedTotal, _ = meter.Int64Counter(
		"identity.otps.rejected.total",
		metric.WithDescription("One-time codes rejected"),
		metric.WithUnit("{code}"),
	)
	m.OTPsSweptTotal, _ = meter.Int64Counter(
		"identity.otps.swept.total",
		metric.WithDescription("Expired one-time code records deleted by the sweeper"),
		metric.WithUnit("{record}"),
	)

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"identity.sessions.created.total",
		metric.WithDescription("Refresh sessions created"),
		metric.WithUnit("{session}"),
	)
	m.SessionsRevokedTotal, _ = meter.Int64Counter(
		"identity.sessions.revoked.total",
		metric.WithDescription("Refresh sessions revoked"),
		metric.WithUnit("{session}"),
	)
	m.RefreshesTotal, _ = meter.Int64Counter(
		"identity.refreshes.total",
		metric.WithDescription("Access tokens reissued from a refresh token"),
		metric.WithUnit("{token}"),
	)

	return m
}
