package shadowban

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ErrNoReplies marks a barrier test that had no replies to test with.
const ErrNoReplies = "ENOREPLIES"

// DetectionResult is the verdict of one probe. It is created fresh per probe and
// not modified after it is returned.
type DetectionResult struct {
	Timestamp float64 `json:"timestamp"` // epoch seconds
	Profile   Profile `json:"profile"`
	Tests     *Tests  `json:"tests,omitempty"`
}

// Profile describes the probed account.
type Profile struct {
	ScreenName  string `json:"screen_name"`
	Exists      bool   `json:"exists"`
	Suspended   bool   `json:"suspended,omitempty"`
	Protected   *bool  `json:"protected,omitempty"`
	Restriction string `json:"restriction,omitempty"`
	HasTweets   bool   `json:"has_tweets"`
}

// Visible reports whether the profile passes the gate for running tests.
func (p Profile) Visible() bool {
	return p.Exists && !p.Suspended && (p.Protected == nil || !*p.Protected) && p.HasTweets
}

// Tests holds the outcome of each visibility test. A nil Search or Typeahead means
// the call failed and the field is left out; a nil Ghost or MoreReplies means the
// test could not reach a verdict.
type Tests struct {
	Search      *SearchResult  `json:"search,omitempty"`
	Typeahead   *bool          `json:"typeahead,omitempty"`
	Ghost       *GhostResult   `json:"ghost"`
	MoreReplies *BarrierResult `json:"more_replies,omitempty"`
}

// SearchResult is the newest tweet id found by search, or empty when search
// returned nothing. It encodes as the id string or false.
type SearchResult string

func (s SearchResult) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("false"), nil
	}
	return json.Marshal(string(s))
}

func (s *SearchResult) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("false")) || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	var id string
	if err := json.Unmarshal(b, &id); err != nil {
		return fmt.Errorf("search result: %w", err)
	}
	*s = SearchResult(id)
	return nil
}

// GhostResult is the outcome of the ghost-ban test for one (tweet, reply) pair.
type GhostResult struct {
	Tweet string `json:"tweet,omitempty"`
	Reply string `json:"reply,omitempty"`
	Ban   bool   `json:"ban"`
}

// BarrierResult is the outcome of the reply-barrier test. Stage is set only when
// the reply surfaced behind a pagination cursor.
type BarrierResult struct {
	Ban       bool   `json:"ban"`
	Tweet     string `json:"tweet,omitempty"`
	InReplyTo string `json:"in_reply_to,omitempty"`
	Stage     *int   `json:"stage,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (b BarrierResult) MarshalJSON() ([]byte, error) {
	if b.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{b.Error})
	}
	type plain BarrierResult
	return json.Marshal(plain(b))
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
