package shadowban

import (
	"context"
	"time"

	"github.com/anatolykoptev/go-stealth/ratelimit"
)

// Config holds all configuration for the session pool and detector.
type Config struct {
	// APIBase is the timeline API origin. Default: https://api.twitter.com
	APIBase string

	// BearerToken is the web-app bearer token sent by every session.
	BearerToken string

	// GuestPoolSize is the number of anonymous sessions created at startup.
	GuestPoolSize int

	// GuestTokenTTL is how long a guest token is used before a forced refresh.
	GuestTokenTTL time.Duration

	// GuestRefreshBelow forces a guest re-login once remaining drops below it.
	GuestRefreshBelow int

	// DefaultProxy is the proxy URL for sessions without a per-account proxy.
	DefaultProxy string

	// Accounts are the credentials of the authenticated sessions.
	Accounts []Credential

	// CaptchaSolver answers Arkose challenges during account login. Optional; without
	// it a challenged login fails.
	CaptchaSolver CaptchaSolver

	// CookieStore persists authenticated cookies between runs. Optional.
	CookieStore CookieStore

	// Sink receives detection results and rate-limit overshoot records. Optional.
	Sink Sink

	// RateLimit configures the per-session endpoint limiter.
	RateLimit ratelimit.Config

	// NewTransport overrides how session transports are created.
	NewTransport TransportFactory

	// Now overrides the clock used for token refresh and session ranking.
	Now func() time.Time
}

// CaptchaSolver solves a FunCaptcha challenge and returns the solution token.
type CaptchaSolver interface {
	Solve(ctx context.Context, siteKey, pageURL string) (string, error)
}

// defaults fills in zero-value config fields with sensible defaults.
func (cfg *Config) defaults() {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.BearerToken == "" {
		cfg.BearerToken = defaultBearerToken
	}
	if cfg.GuestPoolSize == 0 {
		cfg.GuestPoolSize = 10
	}
	if cfg.GuestTokenTTL == 0 {
		cfg.GuestTokenTTL = time.Hour
	}
	if cfg.GuestRefreshBelow == 0 {
		cfg.GuestRefreshBelow = 10
	}
	if cfg.RateLimit.RequestsPerWindow == 0 {
		cfg.RateLimit = ratelimit.DefaultConfig
	}
	if cfg.NewTransport == nil {
		cfg.NewTransport = NewStealthTransport
	}
	if cfg.Sink == nil {
		cfg.Sink = discardSink{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}
