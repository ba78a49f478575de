package shadowban

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keySearch    = "GET /2/search/adaptive.json"
	keyTypeahead = "GET /1.1/search/typeahead.json"
	keyTimeline  = "GET /2/timeline/profile/42.json"

	aliceProfile   = `{"id_str":"42","screen_name":"Alice","statuses_count":10,"protected":false}`
	emptySearch    = `{"globalObjects":{"tweets":{}}}`
	aliceTypeahead = `{"users":[{"screen_name":"someone"},{"screen_name":"ALICE"}]}`
)

func keyConversation(id string) string {
	return "GET /2/timeline/conversation/" + id + ".json"
}

func startedPool(t *testing.T, ft *fakeTransport, sink Sink, accounts ...Credential) *SessionPool {
	t.Helper()
	cfg := testConfig(ft, sink)
	cfg.Accounts = accounts
	cfg.CookieStore = &memoryCookieStore{cookies: map[string]SavedCookies{"ref": {AuthToken: "ref-token", CT0: "ref-csrf"}}}
	p := NewSessionPool(cfg)
	require.NoError(t, p.Start(context.Background()))
	return p
}

func TestDetector_ProfileGate(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		want    Profile
	}{
		{"not found", `{"errors":[{"code":50,"message":"User not found."}]}`, Profile{ScreenName: "alice"}},
		{"suspended", `{"errors":[{"code":63}]}`, Profile{ScreenName: "alice", Exists: true, Suspended: true}},
		{"no tweets", `{"id_str":"42","screen_name":"Alice","statuses_count":0}`, Profile{ScreenName: "Alice", Exists: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			ft.json(keyProfile, tt.profile)
			sink := &recordingSink{}
			d := NewDetector(startedPool(t, ft, sink))

			res, err := d.Probe(context.Background(), "alice")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Profile)
			assert.Nil(t, res.Tests)
			assert.Equal(t, float64(testNow.Unix()), res.Timestamp)
			assert.Zero(t, ft.count(keySearch))
			require.Len(t, sink.results, 1)
		})
	}
}

func TestDetector_Protected(t *testing.T) {
	ft := newFakeTransport()
	ft.json(keyProfile, `{"id_str":"42","screen_name":"Alice","statuses_count":3,"protected":true,"profile_interstitial_type":"fake_account"}`)
	d := NewDetector(startedPool(t, ft, nil))

	res, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, res.Profile.Protected)
	assert.True(t, *res.Profile.Protected)
	assert.Equal(t, "fake_account", res.Profile.Restriction)
	assert.Nil(t, res.Tests)
}

func TestDetector_UnexpectedAPIError(t *testing.T) {
	ft := newFakeTransport()
	ft.json(keyProfile, `{"errors":[{"code":131,"message":"Internal error"}]}`)
	sink := &recordingSink{}
	d := NewDetector(startedPool(t, ft, sink))

	_, err := d.Probe(context.Background(), "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedAPI)
	assert.Empty(t, sink.results)
}

func TestDetector_NoSession(t *testing.T) {
	cfg := testConfig(newFakeTransport(), nil)
	cfg.GuestPoolSize = -1
	_, err := NewDetector(NewSessionPool(cfg)).Probe(context.Background(), "alice")
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestDetector_SearchVisibleNoReplies(t *testing.T) {
	ft := newFakeTransport()
	ft.json(keyProfile, aliceProfile)
	ft.json(keySearch, `{"globalObjects":{"tweets":{"5":{"id":5},"17":{"id":17},"9":{"id":9}}}}`)
	ft.json(keyTypeahead, aliceTypeahead)
	ft.json(keyTimeline, timelineBody(t, []fakeTweet{{ID: "100", User: "42", Replies: 2}}, []string{"100"}))
	sink := &recordingSink{}
	d := NewDetector(startedPool(t, ft, sink))

	res, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, res.Tests)
	assert.Equal(t, new(SearchResult("17")), res.Tests.Search)
	assert.Equal(t, new(true), res.Tests.Typeahead)
	assert.Equal(t, &GhostResult{Ban: false}, res.Tests.Ghost)
	assert.Equal(t, &BarrierResult{Error: ErrNoReplies}, res.Tests.MoreReplies)
	assert.Contains(t, ft.last(keySearch).url, "q=from%3A%40alice")
	assert.Contains(t, ft.last(keyTypeahead).url, "q=%40alice")

	require.Len(t, sink.results, 1)
	b, err := json.Marshal(sink.results[0])
	require.NoError(t, err)
	var back DetectionResult
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, sink.results[0], &back)
	assert.Contains(t, string(b), `"more_replies":{"error":"ENOREPLIES"}`)
}

func TestDetector_CallFailureLeavesTestsUnset(t *testing.T) {
	tests := []struct {
		name      string
		search    fakeResponse
		wantTests string
	}{
		{
			name:      "search",
			search:    fakeResponse{err: errors.New("connection reset")},
			wantTests: `{"ghost":null}`,
		},
		{
			name:      "typeahead after search hit",
			search:    fakeResponse{body: `{"globalObjects":{"tweets":{"17":{}}}}`},
			wantTests: `{"search":"17","ghost":{"ban":false}}`,
		},
		{
			name:      "typeahead after search miss",
			search:    fakeResponse{body: emptySearch},
			wantTests: `{"search":false,"ghost":null}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			ft.json(keyProfile, aliceProfile)
			ft.route(keySearch, tt.search)
			ft.route(keyTypeahead, fakeResponse{err: errors.New("connection reset")})
			sink := &recordingSink{}
			d := NewDetector(startedPool(t, ft, sink))

			res, err := d.Probe(context.Background(), "alice")
			require.NoError(t, err)
			require.NotNil(t, res.Tests)
			assert.Nil(t, res.Tests.Typeahead)
			assert.Nil(t, res.Tests.MoreReplies)
			assert.Zero(t, ft.count(keyTimeline), "no ghost test on an incomplete result")

			b, err := json.Marshal(res.Tests)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantTests, string(b))
			require.Len(t, sink.results, 1)
		})
	}
}

func ghostFixture(t *testing.T, ft *fakeTransport, replyView []fakeTweet) {
	t.Helper()
	ft.json(keyProfile, aliceProfile)
	ft.json(keySearch, emptySearch)
	ft.json(keyTypeahead, `{"users":[]}`)
	ft.json(keyTimeline, timelineBody(t, []fakeTweet{
		{ID: "100", User: "42", Replies: 1},
		{ID: "90", User: "42"},
	}, []string{"100", "90"}))

	own := fakeTweet{ID: "100", User: "42", Replies: 1}
	reply := fakeTweet{ID: "101", User: "7", InReplyTo: "100", Conv: "100"}
	selfReply := fakeTweet{ID: "102", User: "42", InReplyTo: "100", Conv: "100"}
	ft.json(keyConversation("100"), timelineBody(t, []fakeTweet{own, selfReply, reply}, []string{"100", "102", "101"}))

	var ids []string
	for _, tw := range replyView {
		ids = append(ids, tw.ID)
	}
	ft.json(keyConversation("101"), timelineBody(t, replyView, ids))
}

func TestDetector_GhostBan(t *testing.T) {
	ft := newFakeTransport()
	ghostFixture(t, ft, []fakeTweet{{ID: "101", User: "7", InReplyTo: "100", Conv: "100"}})
	d := NewDetector(startedPool(t, ft, nil))

	res, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, new(SearchResult("")), res.Tests.Search)
	assert.Equal(t, new(false), res.Tests.Typeahead)
	assert.Equal(t, &GhostResult{Tweet: "100", Reply: "101", Ban: true}, res.Tests.Ghost)
	assert.Nil(t, res.Tests.MoreReplies, "barrier test skipped after a ghost ban")
	assert.Zero(t, ft.count(keyConversation("102")), "own replies are not probed")
	assert.Equal(t, 1, ft.count(keyTimeline))
}

func TestDetector_GhostVisible(t *testing.T) {
	ft := newFakeTransport()
	ghostFixture(t, ft, []fakeTweet{
		{ID: "100", User: "42", Replies: 1},
		{ID: "101", User: "7", InReplyTo: "100", Conv: "100"},
	})
	d := NewDetector(startedPool(t, ft, nil))

	res, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &GhostResult{Tweet: "100", Reply: "101", Ban: false}, res.Tests.Ghost)
	assert.Equal(t, &BarrierResult{Error: ErrNoReplies}, res.Tests.MoreReplies)
}

func TestDetector_GhostInconclusive(t *testing.T) {
	ft := newFakeTransport()
	ghostFixture(t, ft, []fakeTweet{{ID: "100", User: "42", Replies: 1}})
	d := NewDetector(startedPool(t, ft, nil), WithoutBarrierTest())

	res, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, res.Tests.Ghost)
	assert.Nil(t, res.Tests.MoreReplies)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ghost":null`)
	assert.NotContains(t, string(b), "more_replies")
}

func TestDetector_GhostTimelineFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.json(keyProfile, aliceProfile)
	ft.json(keySearch, emptySearch)
	ft.json(keyTypeahead, `{"users":[]}`)
	ft.route(keyTimeline, fakeResponse{err: errors.New("timeout")})
	d := NewDetector(startedPool(t, ft, nil))

	res, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, res.Tests.Ghost)
	assert.Nil(t, res.Tests.MoreReplies)
}

func barrierFixture(t *testing.T, ft *fakeTransport, hiddenBehind string) {
	t.Helper()
	ft.json(keyProfile, aliceProfile)
	ft.json(keySearch, `{"globalObjects":{"tweets":{"300":{}}}}`)
	ft.json(keyTypeahead, aliceTypeahead)

	mine := fakeTweet{ID: "300", User: "42", InReplyTo: "200", Conv: "199"}
	ownThread := fakeTweet{ID: "310", User: "42", InReplyTo: "305", Conv: "305"}
	ownRoot := fakeTweet{ID: "305", User: "42"}
	ft.json(keyTimeline, timelineBody(t, []fakeTweet{ownThread, ownRoot, mine}, []string{"310", "305", "300"}))

	root := fakeTweet{ID: "199", User: "9"}
	parent := fakeTweet{ID: "200", User: "9", InReplyTo: "199", Conv: "199", Replies: 3}
	other := fakeTweet{ID: "201", User: "8", InReplyTo: "200", Conv: "199"}

	first := []fakeTweet{root, parent}
	firstIDs := []string{"199", "200"}
	if hiddenBehind == "" {
		first = append(first, mine)
		firstIDs = append(firstIDs, "300")
	}
	ft.json(keyConversation("200"), timelineBody(t, first, firstIDs, fakeCursor{Type: cursorShowMoreThreads, Value: "c1"}))

	page1 := []fakeTweet{other}
	page1IDs := []string{"201"}
	if hiddenBehind == "c1" {
		page1 = append(page1, mine)
		page1IDs = append(page1IDs, "300")
	}
	ft.json(keyConversation("200")+"#c1", timelineBody(t, page1, page1IDs, fakeCursor{Type: cursorShowMoreThreadsPrompt, Value: "c2"}))
	ft.json(keyConversation("200")+"#c2", timelineBody(t, []fakeTweet{mine}, []string{"300"}))
}

func TestDetector_BarrierStages(t *testing.T) {
	zero, one := 0, 1
	tests := []struct {
		name         string
		hiddenBehind string
		want         *BarrierResult
	}{
		{"visible", "", &BarrierResult{Ban: false, Tweet: "300", InReplyTo: "200"}},
		{"stage 0", "c1", &BarrierResult{Ban: true, Tweet: "300", InReplyTo: "200", Stage: &zero}},
		{"stage 1", "c2", &BarrierResult{Ban: true, Tweet: "300", InReplyTo: "200", Stage: &one}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			barrierFixture(t, ft, tt.hiddenBehind)
			d := NewDetector(startedPool(t, ft, nil, Credential{ScreenName: "ref"}))

			res, err := d.Probe(context.Background(), "alice")
			require.NoError(t, err)
			assert.Equal(t, new(SearchResult("300")), res.Tests.Search)
			assert.Equal(t, tt.want, res.Tests.MoreReplies)
			assert.Zero(t, ft.count(keyConversation("305")), "replies in own threads are skipped")
		})
	}
}

func TestDetector_BarrierUsesReferenceAccount(t *testing.T) {
	ft := newFakeTransport()
	barrierFixture(t, ft, "c2")
	d := NewDetector(startedPool(t, ft, nil, Credential{ScreenName: "ref"}))

	_, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)

	req := ft.last(keyConversation("200") + "#c2")
	assert.Equal(t, "auth_token=ref-token; ct0=ref-csrf", req.headers["cookie"])
	assert.Contains(t, req.url, "count=1000")
}

func TestDetector_BarrierFallsBackToProbingSession(t *testing.T) {
	ft := newFakeTransport()
	barrierFixture(t, ft, "c1")
	d := NewDetector(startedPool(t, ft, nil))

	res, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, res.Tests.MoreReplies)
	assert.True(t, res.Tests.MoreReplies.Ban)
	assert.NotEmpty(t, ft.last(keyConversation("200")+"#c1").headers["x-guest-token"])
}

func TestDetector_BarrierDeletedParent(t *testing.T) {
	ft := newFakeTransport()
	barrierFixture(t, ft, "c2")
	ft.routes[keyConversation("200")+"#c2"] = []fakeResponse{{body: timelineBody(t, nil, nil)}}
	d := NewDetector(startedPool(t, ft, nil))

	res, err := d.Probe(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, res.Tests.MoreReplies)
}

func TestNewestTweet(t *testing.T) {
	assert.Equal(t, SearchResult(""), newestTweet(mustDecode(t, `{}`)))
	assert.Equal(t, SearchResult(""), newestTweet(mustDecode(t, emptySearch)))
	assert.Equal(t, SearchResult("1000000000000000001"),
		newestTweet(mustDecode(t, `{"globalObjects":{"tweets":{"999999999999999999":{},"1000000000000000001":{}}}}`)))
}

func TestBarrierCandidates(t *testing.T) {
	resp := mustDecode(t, `{"globalObjects":{"tweets":{
		"1":{"user_id_str":"42","in_reply_to_status_id_str":"50","conversation_id_str":"49"},
		"2":{"user_id_str":"42","in_reply_to_status_id_str":null},
		"3":{"user_id_str":"42"},
		"4":{"user_id_str":"7","in_reply_to_status_id_str":"50"},
		"5":{"user_id_str":"42","in_reply_to_status_id_str":"6","conversation_id_str":"6"},
		"6":{"user_id_str":"42"}
	}}}`)
	tweets, ok := tweetsOf(resp)
	require.True(t, ok)
	assert.Equal(t, []string{"1"}, barrierCandidates(tweets, []string{"6", "5", "4", "3", "2", "1"}, "42"))
}
