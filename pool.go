package shadowban

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// exhaustedPenalty ranks a session with an almost empty budget behind any session
// whose window resets within fifteen minutes.
const exhaustedPenalty = 900

// SessionPool owns the guest and authenticated sessions.
type SessionPool struct {
	cfg      *Config
	guests   []*Session
	accounts []*Session

	mu   sync.Mutex
	next int
}

// NewSessionPool creates the sessions described by cfg. Nothing is logged in until Start.
func NewSessionPool(cfg Config) *SessionPool {
	cfg.defaults()
	p := &SessionPool{cfg: &cfg}
	for i := range cfg.Accounts {
		cred := cfg.Accounts[i]
		p.accounts = append(p.accounts, newSession(p.cfg, &cred, i))
	}
	for i := range cfg.GuestPoolSize {
		p.guests = append(p.guests, newSession(p.cfg, nil, len(cfg.Accounts)+i))
	}
	return p
}

// Start logs in every account, then every guest. Individual login failures are
// logged and leave the session out of rotation; Start fails only when ctx ends.
func (p *SessionPool) Start(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range p.accounts {
		g.Go(func() error {
			if err := s.Login(ctx); err != nil {
				slog.Warn("account login failed", slog.String("session", s.Identity()), slog.Any("error", err))
				s.SetLocked(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range p.guests {
		g.Go(func() error {
			if err := s.Login(ctx); err != nil {
				slog.Warn("guest login failed", slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("session pool started",
		slog.Int("accounts", len(p.accounts)),
		slog.Int("guests", len(p.guests)))
	return ctx.Err()
}

// Guests returns the guest sessions.
func (p *SessionPool) Guests() []*Session { return p.guests }

// Accounts returns the authenticated sessions.
func (p *SessionPool) Accounts() []*Session { return p.accounts }

// SelectGuest returns the next guest session in round-robin order, or nil when the
// pool has no guests.
func (p *SessionPool) SelectGuest() *Session {
	if len(p.guests) == 0 {
		return nil
	}
	p.mu.Lock()
	s := p.guests[p.next%len(p.guests)]
	p.next++
	p.mu.Unlock()
	return s
}

// SelectBest returns the unlocked session expected to have budget soonest. Ties keep
// input order. It returns nil when every session is locked.
func (p *SessionPool) SelectBest(sessions []*Session) *Session {
	now := p.cfg.Now()
	var best *Session
	var bestKey float64
	for _, s := range sessions {
		if s.Locked() {
			continue
		}
		key := priority(s.Window(), now)
		if best == nil || key < bestKey {
			best, bestKey = s, key
		}
	}
	return best
}

func priority(w RateLimitWindow, now time.Time) float64 {
	untilReset := time.Unix(w.Reset, 0).Sub(now).Seconds()
	if w.Remaining <= 3 && untilReset > 0 {
		return exhaustedPenalty
	}
	return untilReset
}

// BestAccount returns the best authenticated session, or nil.
func (p *SessionPool) BestAccount() *Session {
	return p.SelectBest(p.accounts)
}

// Unlock clears the locked flag of the account with screenName, ignoring case.
// It reports whether such an account exists.
func (p *SessionPool) Unlock(screenName string) bool {
	for _, s := range p.accounts {
		if strings.EqualFold(s.ScreenName(), screenName) {
			s.SetLocked(false)
			slog.Info("account unlocked", slog.String("session", s.Identity()))
			return true
		}
	}
	return false
}

// PoolStats is a snapshot of every session in the pool.
type PoolStats struct {
	Accounts []SessionStats `json:"accounts"`
	Guests   []SessionStats `json:"guests"`
}

// Stats returns a snapshot of the pool. It does not wait for in-flight calls.
func (p *SessionPool) Stats() PoolStats {
	st := PoolStats{
		Accounts: make([]SessionStats, 0, len(p.accounts)),
		Guests:   make([]SessionStats, 0, len(p.guests)),
	}
	for _, s := range p.accounts {
		st.Accounts = append(st.Accounts, s.Stats())
	}
	for _, s := range p.guests {
		st.Guests = append(st.Guests, s.Stats())
	}
	return st
}
