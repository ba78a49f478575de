package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	shadowban "github.com/anatolykoptev/go-shadowban"
	"github.com/anatolykoptev/go-shadowban/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Log in all sessions and serve probes over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	cmd.Flags().String("host", "127.0.0.1", "address to listen on")
	cmd.Flags().Int("port", 8080, "port to listen on")
	cmd.Flags().String("cors-allow", "", "value for the Access-Control-Allow-Origin header")
	return cmd
}

func runServe(parent context.Context, v *viper.Viper) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, closer, err := buildConfig(v)
	if err != nil {
		return err
	}
	defer closer.Close()

	pool := shadowban.NewSessionPool(cfg)
	if err := pool.Start(ctx); err != nil {
		return err
	}
	detector := shadowban.NewDetector(pool)

	if origin := v.GetString("cors-allow"); origin != "" {
		slog.Info("CORS enabled", slog.String("allow_origin", origin))
	}
	app := server.New(detector, pool, server.Options{AllowOrigin: v.GetString("cors-allow")})

	addr := net.JoinHostPort(v.GetString("host"), strconv.Itoa(v.GetInt("port")))
	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", addr))
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
