package shadowban

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/stretchr/testify/require"
)

const testAPIBase = "https://api.test"

type fakeResponse struct {
	body    string
	headers map[string]string
	status  int
	err     error
}

type fakeRequest struct {
	method  string
	key     string
	url     string
	body    string
	headers map[string]string
}

// fakeTransport answers requests by "METHOD /path" and, for paged calls, "METHOD
// /path#cursor". Each route serves its responses in order and repeats the last one.
type fakeTransport struct {
	mu       sync.Mutex
	routes   map[string][]fakeResponse
	cookies  map[string]string
	requests []fakeRequest
	guests   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: map[string][]fakeResponse{}, cookies: map[string]string{}}
}

func (f *fakeTransport) route(key string, responses ...fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key] = append(f.routes[key], responses...)
}

func (f *fakeTransport) json(key, body string) {
	f.route(key, fakeResponse{body: body})
}

func requestKey(method, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return method + " " + rawURL
	}
	key := method + " " + u.Path
	if c := u.Query().Get("cursor"); c != "" {
		key += "#" + c
	}
	return key
}

func (f *fakeTransport) DoWithHeaderOrder(method, rawURL string, headers map[string]string, body io.Reader, order []string) ([]byte, map[string]string, int, error) {
	var payload []byte
	if body != nil {
		payload, _ = io.ReadAll(body)
	}
	key := requestKey(method, rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, fakeRequest{method: method, key: key, url: rawURL, body: string(payload), headers: headers})

	queue, ok := f.routes[key]
	if !ok {
		if key == "POST /1.1/guest/activate.json" {
			f.guests++
			return []byte(fmt.Sprintf(`{"guest_token":"gt-%d"}`, f.guests)), map[string]string{}, 200, nil
		}
		return nil, nil, 0, errors.New("no route for " + key)
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.routes[key] = queue[1:]
	}
	if resp.err != nil {
		return nil, nil, 0, resp.err
	}
	status := resp.status
	if status == 0 {
		status = 200
	}
	hdrs := resp.headers
	if hdrs == nil {
		hdrs = map[string]string{}
	}
	return []byte(resp.body), hdrs, status, nil
}

func (f *fakeTransport) GetCookieValue(_, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies[name]
}

func (f *fakeTransport) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.key == key {
			n++
		}
	}
	return n
}

func (f *fakeTransport) last(key string) fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].key == key {
			return f.requests[i]
		}
	}
	return fakeRequest{}
}

func (f *fakeTransport) bodies(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if r.key == key {
			out = append(out, r.body)
		}
	}
	return out
}

type recordingSink struct {
	mu         sync.Mutex
	results    []*DetectionResult
	rateLimits []RateLimitRecord
}

func (r *recordingSink) WriteResult(_ context.Context, res *DetectionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *recordingSink) WriteRateLimit(_ context.Context, rec RateLimitRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimits = append(r.rateLimits, rec)
	return nil
}

type memoryCookieStore struct {
	mu      sync.Mutex
	cookies map[string]SavedCookies
}

func (m *memoryCookieStore) Load(name string) (*SavedCookies, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cookies[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memoryCookieStore) Save(name string, c SavedCookies) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cookies == nil {
		m.cookies = map[string]SavedCookies{}
	}
	m.cookies[name] = c
	return nil
}

var testNow = time.Unix(1700000000, 0)

func testConfig(ft *fakeTransport, sink Sink) Config {
	return Config{
		APIBase:       testAPIBase,
		GuestPoolSize: 1,
		Sink:          sink,
		NewTransport: func(string, stealth.BrowserProfile) (Transport, error) {
			return ft, nil
		},
		Now: func() time.Time { return testNow },
	}
}

func loggedInGuest(t *testing.T, ft *fakeTransport, sink Sink) *Session {
	t.Helper()
	s := NewSession(testConfig(ft, sink), nil)
	require.NoError(t, s.LoginGuest(context.Background()))
	return s
}

// Fixture builders for timeline-shaped responses.

type fakeTweet struct {
	ID        string
	User      string
	InReplyTo string
	Conv      string
	Replies   int
}

func (tw fakeTweet) object() map[string]any {
	m := map[string]any{
		"id_str":      tw.ID,
		"user_id_str": tw.User,
		"reply_count": tw.Replies,
	}
	if tw.InReplyTo != "" {
		m["in_reply_to_status_id_str"] = tw.InReplyTo
	}
	if tw.Conv != "" {
		m["conversation_id_str"] = tw.Conv
	} else {
		m["conversation_id_str"] = tw.ID
	}
	return m
}

type fakeCursor struct {
	Type  string
	Value string
}

// timelineBody renders tweets as a timeline response whose entries list ordered,
// newest first, followed by cursor entries.
func timelineBody(t *testing.T, tweets []fakeTweet, ordered []string, cursors ...fakeCursor) string {
	t.Helper()
	objects := map[string]any{}
	for _, tw := range tweets {
		objects[tw.ID] = tw.object()
	}
	var entries []any
	for i, id := range ordered {
		entries = append(entries, map[string]any{
			"sortIndex": strconv.Itoa(1000 - i),
			"content":   map[string]any{"item": map[string]any{"content": map[string]any{"tweet": map[string]any{"id": id}}}},
		})
	}
	for _, c := range cursors {
		entries = append(entries, map[string]any{
			"sortIndex": "0",
			"content": map[string]any{"operation": map[string]any{"cursor": map[string]any{
				"value": c.Value, "cursorType": c.Type,
			}}},
		})
	}
	b, err := json.Marshal(map[string]any{
		"globalObjects": map[string]any{"tweets": objects},
		"timeline": map[string]any{"instructions": []any{
			map[string]any{"addEntries": map[string]any{"entries": entries}},
		}},
	})
	require.NoError(t, err)
	return string(b)
}
