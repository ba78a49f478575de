package shadowban

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoSession is returned when the pool has no session to probe with.
var ErrNoSession = errors.New("no session available")

// Detector runs visibility tests against an account and assembles a DetectionResult.
type Detector struct {
	pool        *SessionPool
	moreReplies bool
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithoutBarrierTest disables the reply-barrier test.
func WithoutBarrierTest() DetectorOption {
	return func(d *Detector) { d.moreReplies = false }
}

// NewDetector creates a detector drawing sessions from p.
func NewDetector(p *SessionPool, opts ...DetectorOption) *Detector {
	d := &Detector{pool: p, moreReplies: true}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Probe tests screenName using the next guest session.
func (d *Detector) Probe(ctx context.Context, screenName string) (*DetectionResult, error) {
	s := d.pool.SelectGuest()
	if s == nil {
		return nil, ErrNoSession
	}
	return d.ProbeWith(ctx, s, screenName)
}

// ProbeWith tests screenName using s. It fails with ErrUnexpectedAPI when the profile
// lookup reports an error other than not-found or suspended, and with the transport
// error when the profile cannot be fetched at all. A failed search or typeahead call
// leaves that test and every later one unset, so the result reads as incomplete
// rather than as a ban.
func (d *Detector) ProbeWith(ctx context.Context, s *Session, screenName string) (*DetectionResult, error) {
	log := slog.With(slog.String("screen_name", screenName), slog.String("session", s.Identity()))
	log.Debug("probing")

	result := &DetectionResult{Timestamp: epochSeconds(d.pool.cfg.Now())}

	raw, err := s.Profile(ctx, screenName)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", screenName, err)
	}
	if codes := unexpectedErrors(raw, CodeNotFound, CodeSuspended); len(codes) > 0 {
		log.Warn("unexpected profile error", slog.Any("codes", codes))
		return nil, fmt.Errorf("%w: profile %s returned codes %v", ErrUnexpectedAPI, screenName, codes)
	}

	userID, _ := lookupString(raw, "id_str")
	if userID == "" {
		userID, _ = lookupString(raw, "id")
	}
	result.Profile = parseProfile(raw, screenName)

	if !result.Profile.Visible() {
		d.write(ctx, result)
		return result, nil
	}

	tests := &Tests{}
	result.Tests = tests

	search, err := s.Search(ctx, "from:@"+screenName)
	if err != nil {
		log.Warn("search test failed", slog.Any("error", err))
		d.write(ctx, result)
		return result, nil
	}
	newest := newestTweet(search)
	tests.Search = &newest
	if newest != "" {
		tests.Ghost = &GhostResult{Ban: false}
	}

	typeahead, err := s.Typeahead(ctx, "@"+screenName)
	if err != nil {
		log.Warn("typeahead test failed", slog.Any("error", err))
		d.write(ctx, result)
		return result, nil
	}
	tests.Typeahead = new(typeaheadHit(typeahead, screenName))

	if newest == "" {
		tests.Ghost = d.ghostBan(ctx, s, userID)
	}

	if d.moreReplies && (tests.Ghost == nil || !tests.Ghost.Ban) {
		tests.MoreReplies = d.replyBarrier(ctx, s, userID)
	}

	d.write(ctx, result)
	return result, nil
}

func (d *Detector) write(ctx context.Context, r *DetectionResult) {
	if err := d.pool.cfg.Sink.WriteResult(ctx, r); err != nil {
		slog.Warn("result write failed", slog.String("screen_name", r.Profile.ScreenName), slog.Any("error", err))
	}
}

func parseProfile(raw map[string]any, screenName string) Profile {
	p := Profile{ScreenName: screenName}
	if sn, ok := lookupString(raw, "screen_name"); ok {
		p.ScreenName = sn
	}
	if r, ok := lookupString(raw, "profile_interstitial_type"); ok {
		p.Restriction = r
	}
	if v, ok := lookupBool(raw, "protected"); ok {
		p.Protected = &v
	}
	p.Exists = !hasError(raw, CodeNotFound)
	p.Suspended = hasError(raw, CodeSuspended)
	if n, ok := lookupInt(raw, "statuses_count"); ok {
		p.HasTweets = n > 0
	}
	return p
}

// newestTweet returns the highest tweet id in a search response.
func newestTweet(resp map[string]any) SearchResult {
	tweets, ok := tweetsOf(resp)
	if !ok || len(tweets) == 0 {
		return ""
	}
	ids := make([]string, 0, len(tweets))
	for id := range tweets {
		ids = append(ids, id)
	}
	sortIDsDesc(ids)
	return SearchResult(ids[0])
}

func typeaheadHit(resp map[string]any, screenName string) bool {
	users, ok := lookupSlice(resp, "users")
	if !ok {
		return false
	}
	for _, u := range users {
		if sn, ok := lookupString(u, "screen_name"); ok && strings.EqualFold(sn, screenName) {
			return true
		}
	}
	return false
}
