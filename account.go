package shadowban

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Credential identifies a platform account used as an authenticated session.
type Credential struct {
	ScreenName string `yaml:"screen_name" json:"screen_name"`
	Password   string `yaml:"password" json:"password"`
	Email      string `yaml:"email,omitempty" json:"email,omitempty"`
	TOTPSecret string `yaml:"totp_secret,omitempty" json:"totp_secret,omitempty"`
	Proxy      string `yaml:"proxy,omitempty" json:"proxy,omitempty"`
}

// UnmarshalYAML also accepts the positional form [screen_name, password, email, totp_secret].
func (c *Credential) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		type plain Credential
		return n.Decode((*plain)(c))
	}
	var parts []string
	if err := n.Decode(&parts); err != nil {
		return err
	}
	fields := []*string{&c.ScreenName, &c.Password, &c.Email, &c.TOTPSecret}
	for i := range min(len(parts), len(fields)) {
		*fields[i] = parts[i]
	}
	return nil
}

// ParseCredentials parses a comma-separated list of accounts.
// Format: "user1:pass1,user2:pass2" or "user1:pass1:email" or "user1:pass1:email:totp_secret".
func ParseCredentials(raw string) []Credential {
	var creds []Credential
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 2 || parts[0] == "" {
			slog.Warn("invalid account entry, skipping", slog.String("entry", parts[0]))
			continue
		}
		c := Credential{ScreenName: parts[0], Password: parts[1]}
		if len(parts) >= 3 {
			c.Email = parts[2]
		}
		if len(parts) >= 4 {
			c.TOTPSecret = parts[3]
		}
		creds = append(creds, c)
	}
	return creds
}

// LoadCredentials reads a YAML (or JSON) list of credentials. A missing file yields no
// accounts.
func LoadCredentials(path string) ([]Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var creds []Credential
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	out := creds[:0]
	for _, c := range creds {
		if c.ScreenName == "" {
			slog.Warn("account without screen_name, skipping", slog.String("file", path))
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
