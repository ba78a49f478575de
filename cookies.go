package shadowban

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SavedCookies is the persisted cookie state of an authenticated session.
type SavedCookies struct {
	AuthToken string    `json:"auth_token"`
	CT0       string    `json:"ct0"`
	SavedAt   time.Time `json:"saved_at"`
}

// CookieStore maps an authenticated identity to its persisted cookie state.
// Load returns nil, nil when nothing usable is stored.
type CookieStore interface {
	Load(screenName string) (*SavedCookies, error)
	Save(screenName string, c SavedCookies) error
}

// FileCookieStore keeps one JSON file per account under Dir.
type FileCookieStore struct {
	Dir string
	TTL time.Duration // zero keeps sessions forever
}

// DefaultCookieDir returns ~/.go-shadowban/cookies.
func DefaultCookieDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".go-shadowban", "cookies")
}

func (s *FileCookieStore) path(screenName string) string {
	return filepath.Join(s.Dir, screenName+".json")
}

// Save persists cookies to disk.
func (s *FileCookieStore) Save(screenName string, c SavedCookies) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(screenName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cookies %s: %w", path, err)
	}
	slog.Debug("cookies saved", slog.String("user", screenName))
	return nil
}

// Load reads persisted cookies from disk.
func (s *FileCookieStore) Load(screenName string) (*SavedCookies, error) {
	data, err := os.ReadFile(s.path(screenName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var c SavedCookies
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse cookies for %s: %w", screenName, err)
	}
	if s.TTL > 0 && time.Since(c.SavedAt) > s.TTL {
		slog.Debug("cookies expired", slog.String("user", screenName))
		return nil, nil
	}
	if c.AuthToken == "" || c.CT0 == "" {
		return nil, nil
	}
	return &c, nil
}
