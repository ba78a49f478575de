package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/viper"

	shadowban "github.com/anatolykoptev/go-shadowban"
	"github.com/anatolykoptev/go-shadowban/store"
)

// buildConfig turns settings into a pool config. The returned closer releases the
// sink files, if any.
func buildConfig(v *viper.Viper) (shadowban.Config, io.Closer, error) {
	cfg := shadowban.Config{
		APIBase:       v.GetString("api-base"),
		BearerToken:   v.GetString("bearer-token"),
		GuestPoolSize: v.GetInt("guests"),
		DefaultProxy:  v.GetString("proxy"),
	}

	accounts, err := shadowban.LoadCredentials(v.GetString("accounts-file"))
	if err != nil {
		return cfg, nil, err
	}
	if inline := v.GetString("accounts"); inline != "" {
		accounts = append(accounts, shadowban.ParseCredentials(inline)...)
	}
	cfg.Accounts = accounts

	ttl := v.GetDuration("cookie-ttl")
	switch {
	case v.GetBool("keyring"):
		ks, err := store.NewKeyringCookieStore(ttl)
		if err != nil {
			return cfg, nil, err
		}
		cfg.CookieStore = ks
	case v.GetString("cookie-dir") != "":
		cfg.CookieStore = &shadowban.FileCookieStore{Dir: v.GetString("cookie-dir"), TTL: ttl}
	}

	var closer io.Closer = nopCloser{}
	if dir := v.GetString("log-dir"); dir != "" {
		ls, err := store.OpenLogSink(dir)
		if err != nil {
			return cfg, nil, fmt.Errorf("open result log: %w", err)
		}
		slog.Info("logging results", slog.String("dir", dir))
		cfg.Sink = ls
		closer = ls
	}

	slog.Info("configuration loaded",
		slog.Int("accounts", len(cfg.Accounts)),
		slog.Int("guests", cfg.GuestPoolSize),
		slog.Bool("cookie_store", cfg.CookieStore != nil))
	return cfg, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
