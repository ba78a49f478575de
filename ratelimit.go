package shadowban

import (
	"log/slog"
	"strconv"
)

// RateLimitWindow tracks the rate-limit budget a session observed in response headers.
type RateLimitWindow struct {
	Limit     int
	Remaining int
	Reset     int64 // epoch seconds
	Overshoot int   // requests that hit an exhausted budget since the last observed reset
}

// RateLimitRecord is written to the sink when an authenticated session's window resets
// after overshooting.
type RateLimitRecord struct {
	ScreenName string `json:"screen_name"`
	Overshot   int    `json:"overshot"`
}

func newRateLimitWindow() RateLimitWindow {
	return RateLimitWindow{Limit: -1, Remaining: 180, Reset: -1}
}

// Observe updates the window from x-rate-limit-* headers. When the budget went up
// since the previous observation while an overshoot is pending on an authenticated
// session, it returns the overshoot to flush and zeroes the counter.
//
// A reset is inferred from remaining increasing between two consecutive
// observations only; windows that roll over more than once between calls can be missed.
func (w *RateLimitWindow) Observe(headers map[string]string, authenticated bool) (int, bool) {
	previous := w.Remaining

	if v, ok := headerInt(headers, "x-rate-limit-limit"); ok {
		w.Limit = int(v)
	}
	if v, ok := headerInt(headers, "x-rate-limit-remaining"); ok {
		w.Remaining = int(v)
	}
	if v, ok := headerInt(headers, "x-rate-limit-reset"); ok {
		w.Reset = v
	}

	flushed, flush := 0, false
	if previous < w.Remaining && w.Overshoot > 0 && authenticated {
		flushed, flush = w.Overshoot, true
		w.Overshoot = 0
	}

	if w.Remaining == 0 {
		w.Overshoot++
	}
	return flushed, flush
}

func headerInt(headers map[string]string, key string) (int64, bool) {
	raw, ok := headers[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Debug("ignoring malformed rate-limit header", slog.String("header", key), slog.String("value", raw))
		return 0, false
	}
	return v, true
}
