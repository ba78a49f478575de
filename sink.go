package shadowban

import "context"

// Sink is the append-only destination for probe results and rate-limit overshoot
// records. Nothing is ever read back.
type Sink interface {
	WriteResult(ctx context.Context, r *DetectionResult) error
	WriteRateLimit(ctx context.Context, r RateLimitRecord) error
}

type discardSink struct{}

func (discardSink) WriteResult(context.Context, *DetectionResult) error  { return nil }
func (discardSink) WriteRateLimit(context.Context, RateLimitRecord) error { return nil }
