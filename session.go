package shadowban

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/pool"
	"github.com/anatolykoptev/go-stealth/ratelimit"
)

var errNoTransport = errors.New("session has no transport, login first")

// Session is one client identity: an anonymous guest or an authenticated account.
// Calls on a session are serialized; state accessors never wait on an in-flight call.
type Session struct {
	cfg     *Config
	cred    *Credential // nil for guests
	proxy   string
	profile stealth.BrowserProfile

	callMu sync.Mutex // held for the whole of a call or login

	mu          sync.Mutex
	transport   Transport
	headers     map[string]string
	guestToken  string
	authToken   string
	ct0         string
	locked      bool
	window      RateLimitWindow
	nextRefresh time.Time

	health  pool.HealthTracker
	limiter *ratelimit.Limiter
}

// NewSession creates a session that is not logged in yet. A nil cred makes a guest.
func NewSession(cfg Config, cred *Credential) *Session {
	cfg.defaults()
	return newSession(&cfg, cred, 0)
}

func newSession(cfg *Config, cred *Credential, idx int) *Session {
	s := &Session{
		cfg:     cfg,
		cred:    cred,
		proxy:   cfg.DefaultProxy,
		profile: browserProfile(idx),
		window:  newRateLimitWindow(),
		health:  pool.DefaultHealthTracker(),
		limiter: ratelimit.NewLimiter(cfg.RateLimit),
	}
	if cred != nil && cred.Proxy != "" {
		s.proxy = cred.Proxy
	}
	s.headers = baseHeaders(s.profile.UserAgent)
	return s
}

// Authenticated reports whether the session logs in with account credentials.
func (s *Session) Authenticated() bool { return s.cred != nil }

// ScreenName returns the account handle, or "" for guests.
func (s *Session) ScreenName() string {
	if s.cred == nil {
		return ""
	}
	return s.cred.ScreenName
}

// Identity is a display label for logs and stats.
func (s *Session) Identity() string {
	if s.cred == nil {
		return "anonymous"
	}
	return "authenticated:" + s.cred.ScreenName
}

// Locked reports whether the platform flagged the account as locked.
func (s *Session) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// SetLocked changes the locked flag. Locked sessions are skipped by SelectBest.
func (s *Session) SetLocked(v bool) {
	s.mu.Lock()
	s.locked = v
	s.mu.Unlock()
}

// Window returns a snapshot of the observed rate-limit window.
func (s *Session) Window() RateLimitWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// LoginGuest acquires a fresh transport and guest token.
func (s *Session) LoginGuest(ctx context.Context) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	return s.loginGuest(ctx)
}

// Login logs the session in with its credential, or as a guest when it has none.
func (s *Session) Login(ctx context.Context) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	if s.cred == nil {
		return s.loginGuest(ctx)
	}
	return s.loginAccount(ctx)
}

// renewTransport replaces the transport, dropping the old cookie jar. Caller holds callMu.
func (s *Session) renewTransport() (Transport, error) {
	s.mu.Lock()
	old := s.transport
	s.transport = nil
	s.mu.Unlock()
	if old != nil {
		closeTransport(old)
	}

	t, err := s.cfg.NewTransport(s.proxy, s.profile)
	if err != nil {
		return nil, fmt.Errorf("new transport: %w", err)
	}
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
	return t, nil
}

// loginGuest keeps the previous guest token when activation fails.
func (s *Session) loginGuest(ctx context.Context) error {
	t, err := s.renewTransport()
	if err != nil {
		return err
	}
	ct0 := cookieValue(t, "ct0")
	token, err := s.activateGuestToken(ctx, t, ct0)

	s.mu.Lock()
	s.ct0 = ct0
	if err == nil {
		s.guestToken = token
		s.nextRefresh = s.cfg.Now().Add(s.cfg.GuestTokenTTL)
	}
	s.rebuildHeadersLocked()
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("guest login: %w", err)
	}
	slog.Debug("guest token acquired", slog.String("session", s.Identity()), slog.String("proxy", stealth.MaskProxy(s.proxy)))
	return nil
}

func (s *Session) loginAccount(ctx context.Context) error {
	t, err := s.renewTransport()
	if err != nil {
		return err
	}
	name := s.cred.ScreenName

	var authToken, ct0 string
	if s.cfg.CookieStore != nil {
		saved, err := s.cfg.CookieStore.Load(name)
		if err != nil {
			slog.Warn("error loading cookies", slog.String("user", name), slog.Any("error", err))
		} else if saved != nil {
			authToken, ct0 = saved.AuthToken, saved.CT0
			slog.Info("loaded cookies from store", slog.String("user", name))
		}
	}

	if authToken == "" {
		if s.cred.Password == "" {
			return fmt.Errorf("no stored cookies and no password for account %s", name)
		}
		authToken, ct0, err = s.loginFlow(ctx, t)
		if err != nil {
			return fmt.Errorf("login %s: %w", name, err)
		}
		s.persistCookies(authToken, ct0)
	}

	s.mu.Lock()
	s.authToken = authToken
	s.ct0 = ct0
	s.rebuildHeadersLocked()
	s.mu.Unlock()
	s.health.Reset()
	return nil
}

func (s *Session) persistCookies(authToken, ct0 string) {
	if s.cfg.CookieStore == nil || s.cred == nil {
		return
	}
	if err := s.cfg.CookieStore.Save(s.cred.ScreenName, SavedCookies{AuthToken: authToken, CT0: ct0}); err != nil {
		slog.Warn("cookie save failed", slog.String("user", s.cred.ScreenName), slog.Any("error", err))
	}
}

func (s *Session) rebuildHeadersLocked() {
	h := baseHeaders(s.profile.UserAgent)
	if s.cred != nil {
		accountHeaders(h, s.cfg.BearerToken, s.authToken, s.ct0)
	} else {
		guestHeaders(h, s.cfg.BearerToken, s.guestToken, s.ct0)
	}
	s.headers = h
}

// refreshIfStale re-logs a guest whose token outlived GuestTokenTTL.
func (s *Session) refreshIfStale(ctx context.Context) {
	if s.cred != nil {
		return
	}
	s.mu.Lock()
	due := !s.nextRefresh.IsZero() && !s.cfg.Now().Before(s.nextRefresh)
	s.mu.Unlock()
	if !due {
		return
	}
	slog.Debug("guest token expired, refreshing", slog.String("session", s.Identity()))
	if err := s.loginGuest(ctx); err != nil {
		slog.Warn("guest token refresh failed", slog.Any("error", err))
	}
}

// Call performs a GET on rawURL and returns the decoded JSON object. Platform error
// codes are returned inside the response; only transport and decode failures are
// errors. Code 353 is retried up to retries times.
func (s *Session) Call(ctx context.Context, endpoint, rawURL string, retries int) (map[string]any, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.refreshIfStale(ctx)

		resp, hdrs, err := s.get(rawURL)
		if err != nil {
			s.health.RecordFailure()
			slog.Warn("request failed",
				slog.String("endpoint", endpoint),
				slog.String("session", s.Identity()),
				slog.Any("error", err))
			if s.cred == nil {
				if lerr := s.loginGuest(ctx); lerr != nil {
					slog.Warn("guest re-login failed", slog.Any("error", lerr))
				}
			}
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}

		s.observe(ctx, hdrs)
		s.trackCT0(hdrs)

		rateLimited := hasError(resp, CodeRateLimited)
		if rateLimited {
			s.limiter.MarkRateLimited(endpoint, parseRateLimitReset(hdrs["x-rate-limit-reset"]))
		}

		// Guests trade a spent or rejected token for a fresh one. Accounts keep their
		// login on 88 and 239; the limiter marks the endpoint until the reset instead.
		if s.cred == nil && (s.Window().Remaining < s.cfg.GuestRefreshBelow || rateLimited || hasError(resp, CodeBadGuestToken)) {
			slog.Debug("refreshing guest token",
				slog.String("endpoint", endpoint),
				slog.Int("remaining", s.Window().Remaining))
			if err := s.loginGuest(ctx); err != nil {
				slog.Warn("guest re-login failed", slog.Any("error", err))
			}
		}

		if hasError(resp, CodeBadGuestTokenRetry) && retries > 0 {
			retries--
			slog.Debug("retrying after code 353", slog.String("endpoint", endpoint))
			continue
		}

		if hasError(resp, CodeAccountLocked) {
			s.SetLocked(true)
			slog.Warn("account locked", slog.String("session", s.Identity()))
		}

		if rateLimited || hasError(resp, CodeAccountLocked) || hasError(resp, CodeBadGuestToken) {
			s.health.RecordFailure()
		} else {
			s.health.RecordSuccess()
		}
		return resp, nil
	}
}

func (s *Session) get(rawURL string) (map[string]any, map[string]string, error) {
	s.mu.Lock()
	t := s.transport
	headers := maps.Clone(s.headers)
	s.mu.Unlock()
	if t == nil {
		return nil, nil, errNoTransport
	}

	body, hdrs, status, err := t.DoWithHeaderOrder("GET", rawURL, headers, nil, headerOrder)
	if err != nil {
		return nil, nil, err
	}
	resp, err := decodeResponse(body)
	if err != nil {
		return nil, hdrs, fmt.Errorf("HTTP %d: %w", status, err)
	}
	return resp, hdrs, nil
}

func (s *Session) observe(ctx context.Context, hdrs map[string]string) {
	s.mu.Lock()
	overshot, flush := s.window.Observe(hdrs, s.cred != nil)
	exhausted := s.window.Remaining == 0
	s.mu.Unlock()

	if exhausted {
		slog.Info("rate limit hit", slog.String("session", s.Identity()))
	}
	if !flush {
		return
	}
	slog.Info("rate limit reset, saving overshoot",
		slog.String("session", s.Identity()),
		slog.Int("overshot", overshot))
	rec := RateLimitRecord{ScreenName: s.ScreenName(), Overshot: overshot}
	if err := s.cfg.Sink.WriteRateLimit(ctx, rec); err != nil {
		slog.Warn("rate limit record write failed", slog.Any("error", err))
	}
}

// trackCT0 follows ct0 rotations announced in set-cookie.
func (s *Session) trackCT0(hdrs map[string]string) {
	ct0 := extractCT0FromHeaders(hdrs)
	if ct0 == "" {
		return
	}
	s.mu.Lock()
	if ct0 == s.ct0 {
		s.mu.Unlock()
		return
	}
	s.ct0 = ct0
	s.rebuildHeadersLocked()
	authToken := s.authToken
	s.mu.Unlock()

	if s.cred != nil {
		s.persistCookies(authToken, ct0)
	}
}

// SessionStats is a point-in-time view of one session.
type SessionStats struct {
	Identity    string               `json:"identity"`
	Locked      bool                 `json:"locked"`
	Limit       int                  `json:"limit"`
	Remaining   int                  `json:"remaining"`
	ResetIn     int64                `json:"reset_in"` // seconds, negative once passed
	Overshoot   int                  `json:"overshoot"`
	Requests    int                  `json:"requests"`
	Failures    int                  `json:"failures"`
	Consecutive int                  `json:"consecutive_failures"`
	LimitedTill map[string]time.Time `json:"limited_until,omitempty"`
}

var limitedEndpoints = []string{epProfile, epSearch, epTypeahead, epProfileTL, epConversation}

// Stats returns a snapshot of the session's state.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	st := SessionStats{
		Identity:  s.Identity(),
		Locked:    s.locked,
		Limit:     s.window.Limit,
		Remaining: s.window.Remaining,
		ResetIn:   s.window.Reset - s.cfg.Now().Unix(),
		Overshoot: s.window.Overshoot,
	}
	s.mu.Unlock()

	st.Requests, st.Failures, st.Consecutive = s.health.Stats()
	for _, ep := range limitedEndpoints {
		if s.limiter.IsRateLimited(ep) {
			if st.LimitedTill == nil {
				st.LimitedTill = make(map[string]time.Time)
			}
			st.LimitedTill[ep] = s.limiter.AvailableAt(ep)
		}
	}
	return st
}
