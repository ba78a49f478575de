package shadowban

import (
	"fmt"
	"io"

	stealth "github.com/anatolykoptev/go-stealth"
)

// Transport is the HTTP identity a session talks through. It owns the cookie jar.
// *stealth.BrowserClient satisfies it.
type Transport interface {
	DoWithHeaderOrder(method, url string, headers map[string]string, body io.Reader, order []string) ([]byte, map[string]string, int, error)
	GetCookieValue(url, name string) string
}

// TransportFactory creates a fresh transport for a session.
type TransportFactory func(proxy string, profile stealth.BrowserProfile) (Transport, error)

// NewStealthTransport builds a browser-fingerprinted transport.
func NewStealthTransport(proxy string, profile stealth.BrowserProfile) (Transport, error) {
	opts := []stealth.ClientOption{
		stealth.WithHeaderOrder(headerOrder),
		stealth.WithProfile(profile.TLSProfile),
	}
	if proxy != "" {
		opts = append(opts, stealth.WithProxy(proxy))
	}
	bc, err := stealth.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("stealth client: %w", err)
	}
	return bc, nil
}

// closeTransport releases a transport if it knows how to be closed.
func closeTransport(t Transport) {
	switch c := t.(type) {
	case io.Closer:
		_ = c.Close()
	case interface{ Close() }:
		c.Close()
	case interface{ CloseIdleConnections() }:
		c.CloseIdleConnections()
	}
}

// browserProfile picks a builtin browser profile by index.
func browserProfile(idx int) stealth.BrowserProfile {
	return stealth.BuiltinProfiles[idx%len(stealth.BuiltinProfiles)]
}
