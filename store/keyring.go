package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"

	shadowban "github.com/anatolykoptev/go-shadowban"
)

const (
	keyringService = "go-shadowban"
	keyringPrefix  = "cookies_"
)

// KeyringCookieStore keeps account cookies in the system keychain.
type KeyringCookieStore struct {
	TTL time.Duration // zero keeps cookies forever
}

// NewKeyringCookieStore fails when no keychain is reachable.
func NewKeyringCookieStore(ttl time.Duration) (*KeyringCookieStore, error) {
	const probe = "availability"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringCookieStore{TTL: ttl}, nil
}

func (k *KeyringCookieStore) Save(screenName string, c shadowban.SavedCookies) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+screenName, string(data)); err != nil {
		return fmt.Errorf("store cookies for %s: %w", screenName, err)
	}
	return nil
}

func (k *KeyringCookieStore) Load(screenName string) (*shadowban.SavedCookies, error) {
	data, err := keyring.Get(keyringService, keyringPrefix+screenName)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cookies for %s: %w", screenName, err)
	}
	var c shadowban.SavedCookies
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("parse cookies for %s: %w", screenName, err)
	}
	if k.TTL > 0 && time.Since(c.SavedAt) > k.TTL {
		return nil, nil
	}
	if c.AuthToken == "" || c.CT0 == "" {
		return nil, nil
	}
	return &c, nil
}

// Delete forgets the cookies of screenName.
func (k *KeyringCookieStore) Delete(screenName string) error {
	err := keyring.Delete(keyringService, keyringPrefix+screenName)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete cookies for %s: %w", screenName, err)
	}
	return nil
}
