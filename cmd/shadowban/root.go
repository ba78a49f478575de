package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SHADOWBAN"

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "shadowban",
		Short:         "Probe accounts for search, ghost and reply-barrier bans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadSettings(v, cmd); err != nil {
				return err
			}
			return setupLogging(v.GetString("log-level"), v.GetString("log-format"), os.Stderr)
		},
	}

	f := root.PersistentFlags()
	f.String("config", "", "config file (yaml, json or toml)")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text, json)")
	f.String("accounts-file", ".htaccounts", "file with reference account credentials")
	f.String("accounts", "", "inline accounts, user:pass[:email[:totp]] comma-separated")
	f.String("cookie-dir", "", "directory for persisted account cookies")
	f.Bool("keyring", false, "persist account cookies in the system keychain")
	f.Duration("cookie-ttl", 0, "discard persisted cookies older than this (0 keeps them)")
	f.String("log-dir", "", "directory for results.jsonl and rate_limits.jsonl")
	f.Int("guests", 10, "number of guest sessions")
	f.String("proxy", "", "proxy URL for sessions without their own")
	f.String("bearer-token", "", "web-app bearer token (default: built-in)")
	f.String("api-base", "", "API origin (default: https://api.twitter.com)")

	root.AddCommand(newServeCmd(v), newProbeCmd(v), newLoginCmd(v))
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// loadSettings layers flags over environment over config file over .env.
func loadSettings(v *viper.Viper, cmd *cobra.Command) error {
	_ = godotenv.Load(".env")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

func setupLogging(level, format string, w io.Writer) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
