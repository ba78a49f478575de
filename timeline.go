package shadowban

import (
	"math/big"
	"sort"
)

// Pagination cursors walked by the reply-barrier test, in order.
const (
	cursorShowMoreThreads       = "ShowMoreThreads"
	cursorShowMoreThreadsPrompt = "ShowMoreThreadsPrompt"
)

// timelineEntry is one tweet position in a flattened timeline.
type timelineEntry struct {
	SortIndex int64
	TweetID   string
}

// addEntries returns the entries of the first instruction carrying addEntries.
func addEntries(resp map[string]any) ([]any, bool) {
	instructions, ok := lookupSlice(resp, "timeline", "instructions")
	if !ok {
		return nil, false
	}
	for _, in := range instructions {
		if _, ok := lookup(in, "addEntries"); !ok {
			continue
		}
		entries, ok := lookupSlice(in, "addEntries", "entries")
		return entries, ok
	}
	return nil, false
}

// flattenTimeline extracts tweet ids from timeline entries in emission order.
// An entry contributes its own tweet or, for a grouped module, the tweets of its
// items. Anything else contributes nothing.
func flattenTimeline(entries []any) []string {
	var ids []string
	for _, entry := range entries {
		if id, ok := lookupString(entry, "content", "item", "content", "tweet", "id"); ok {
			ids = append(ids, id)
			continue
		}
		items, ok := lookupSlice(entry, "content", "timelineModule", "items")
		if !ok {
			continue
		}
		for _, item := range items {
			if id, ok := lookupString(item, "item", "content", "tweet", "id"); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// sortedEntries returns a copy of entries ordered by descending sortIndex.
// Equal keys keep their relative order.
func sortedEntries(entries []any) []any {
	type keyed struct {
		key   int64
		entry any
	}
	ks := make([]keyed, len(entries))
	for i, e := range entries {
		k, _ := lookupInt(e, "sortIndex")
		ks[i] = keyed{key: k, entry: e}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key > ks[j].key })
	out := make([]any, len(ks))
	for i, k := range ks {
		out[i] = k.entry
	}
	return out
}

// OrderedTweetIDs returns the tweet ids of a timeline response, newest sort
// position first. With filtered set, ids missing from the response's global tweet
// map (deleted or withheld tweets) are dropped.
func OrderedTweetIDs(resp map[string]any, filtered bool) []string {
	entries, ok := timelineEntries(resp)
	if !ok {
		return nil
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.TweetID)
	}
	if !filtered {
		return ids
	}
	tweets, _ := tweetsOf(resp)
	out := ids[:0]
	for _, id := range ids {
		if _, ok := tweets[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// timelineEntries flattens a timeline response into tweet positions ordered by
// descending sort key.
func timelineEntries(resp map[string]any) ([]timelineEntry, bool) {
	raw, ok := addEntries(resp)
	if !ok {
		return nil, false
	}
	var out []timelineEntry
	for _, e := range sortedEntries(raw) {
		key, _ := lookupInt(e, "sortIndex")
		for _, id := range flattenTimeline([]any{e}) {
			out = append(out, timelineEntry{SortIndex: key, TweetID: id})
		}
	}
	return out, true
}

// findCursor returns the value of the first cursor entry of the given type.
func findCursor(resp map[string]any, cursorType string) (string, bool) {
	entries, ok := addEntries(resp)
	if !ok {
		return "", false
	}
	for _, e := range entries {
		if t, _ := lookupString(e, "content", "operation", "cursor", "cursorType"); t != cursorType {
			continue
		}
		if v, ok := lookupString(e, "content", "operation", "cursor", "value"); ok {
			return v, true
		}
	}
	return "", false
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// sortIDsDesc orders numeric id strings from largest to smallest. Ids that are not
// numbers sort after numeric ones, lexically.
func sortIDsDesc(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, aok := new(big.Int).SetString(ids[i], 10)
		b, bok := new(big.Int).SetString(ids[j], 10)
		switch {
		case aok && bok:
			return a.Cmp(b) > 0
		case aok != bok:
			return aok
		}
		return ids[i] > ids[j]
	})
}
