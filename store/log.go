// Package store provides sinks and cookie stores for the shadowban probe.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	shadowban "github.com/anatolykoptev/go-shadowban"
)

const (
	resultsFile    = "results.jsonl"
	rateLimitsFile = "rate_limits.jsonl"
)

// LogSink appends probe results and rate-limit records as JSON lines.
type LogSink struct {
	results zerolog.Logger
	limits  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	closers []io.Closer
}

// NewLogSink writes results and rate-limit records to the given writers.
func NewLogSink(results, limits io.Writer) *LogSink {
	return &LogSink{
		results: zerolog.New(zerolog.SyncWriter(results)),
		limits:  zerolog.New(zerolog.SyncWriter(limits)),
		now:     time.Now,
	}
}

// OpenLogSink appends to results.jsonl and rate_limits.jsonl under dir.
func OpenLogSink(dir string) (*LogSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	results, err := openAppend(filepath.Join(dir, resultsFile))
	if err != nil {
		return nil, err
	}
	limits, err := openAppend(filepath.Join(dir, rateLimitsFile))
	if err != nil {
		_ = results.Close()
		return nil, err
	}
	s := NewLogSink(results, limits)
	s.closers = []io.Closer{results, limits}
	return s, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// WriteResult appends one result line.
func (s *LogSink) WriteResult(_ context.Context, r *shadowban.DetectionResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	s.results.Log().
		Str("screen_name", r.Profile.ScreenName).
		Time("saved_at", s.now()).
		RawJSON("result", raw).
		Send()
	return nil
}

// WriteRateLimit appends one rate-limit line.
func (s *LogSink) WriteRateLimit(_ context.Context, rec shadowban.RateLimitRecord) error {
	s.limits.Log().
		Str("screen_name", rec.ScreenName).
		Int("overshot", rec.Overshot).
		Time("saved_at", s.now()).
		Send()
	return nil
}

// Close closes files opened by OpenLogSink.
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
