// Package server exposes the detector over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	shadowban "github.com/anatolykoptev/go-shadowban"
)

// Prober runs a probe for one screen name.
type Prober interface {
	Probe(ctx context.Context, screenName string) (*shadowban.DetectionResult, error)
}

// Pool is the admin surface of the session pool.
type Pool interface {
	Stats() shadowban.PoolStats
	Unlock(screenName string) bool
}

// Options configures the HTTP front end.
type Options struct {
	// AllowOrigin is sent as Access-Control-Allow-Origin on probe responses when set.
	AllowOrigin string
}

type handlers struct {
	prober Prober
	pool   Pool
	opts   Options
}

// New builds the fiber app with all routes registered.
func New(prober Prober, pool Pool, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "go-shadowban",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestLogger())

	h := &handlers{prober: prober, pool: pool, opts: opts}
	app.Get("/.stats", h.stats)
	app.Get("/.unlocked/:screen_name", h.unlocked)
	app.Get("/:screen_name", h.probe)
	return app
}

func (h *handlers) probe(c *fiber.Ctx) error {
	name := c.Params("screen_name")
	if h.opts.AllowOrigin != "" {
		c.Set(fiber.HeaderAccessControlAllowOrigin, h.opts.AllowOrigin)
	}

	res, err := h.prober.Probe(c.UserContext(), name)
	switch {
	case err == nil:
		return c.JSON(res)
	case errors.Is(err, shadowban.ErrUnexpectedAPI):
		slog.Warn("probe failed", slog.String("screen_name", name), slog.Any("error", err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": shadowban.ErrUnexpectedAPI.Error()})
	case errors.Is(err, shadowban.ErrNoSession):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		slog.Error("probe failed", slog.String("screen_name", name), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "probe failed"})
	}
}

// stats renders the pool as JSON, or as the plain table with ?format=text.
func (h *handlers) stats(c *fiber.Ctx) error {
	st := h.pool.Stats()
	if c.Query("format") != "text" {
		return c.JSON(st)
	}
	var b strings.Builder
	b.WriteString("--- GUEST SESSIONS ---\n\nLocked Limit Remaining Reset")
	writeRows(&b, st.Guests)
	b.WriteString("\n\n\n--- ACCOUNTS ---\n\nLocked Limit Remaining Reset")
	writeRows(&b, st.Accounts)
	return c.SendString(b.String())
}

func writeRows(b *strings.Builder, rows []shadowban.SessionStats) {
	for _, s := range rows {
		locked := 0
		if s.Locked {
			locked = 1
		}
		fmt.Fprintf(b, "\n%6d %5d %9d %5d", locked, s.Limit, s.Remaining, s.ResetIn)
	}
}

func (h *handlers) unlocked(c *fiber.Ctx) error {
	if h.pool.Unlock(c.Params("screen_name")) {
		return c.SendString("Unlocked")
	}
	return c.SendString("Not unlocked")
}

// requestLogger logs each request through slog, with the level following the status.
func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			slog.String("ip", c.IP()),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}
		switch {
		case status >= 500:
			slog.Error("request completed", attrs...)
		case status >= 400:
			slog.Warn("request completed", attrs...)
		default:
			slog.Info("request completed", attrs...)
		}
		return err
	}
}
