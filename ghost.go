package shadowban

import (
	"context"
	"errors"
	"log/slog"
)

var errMissingTweets = errors.New("response has no tweets object")

// ghostBan reports whether the account's tweets vanish from the threads of replies
// written by others. The verdict is taken from the reply's own conversation view:
// ban means the parent tweet is missing there. A reply that is itself missing from
// its own view says nothing about the parent and is skipped. It returns nil when no
// verdict could be reached.
func (d *Detector) ghostBan(ctx context.Context, s *Session, userID string) *GhostResult {
	res, err := findGhostBan(ctx, s, userID)
	if err != nil {
		slog.Warn("ghost ban test failed", slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	return res
}

func findGhostBan(ctx context.Context, s *Session, userID string) (*GhostResult, error) {
	timeline, err := s.ProfileTimeline(ctx, userID)
	if err != nil {
		return nil, err
	}
	tweets, ok := tweetsOf(timeline)
	if !ok {
		return nil, errMissingTweets
	}

	for _, tid := range OrderedTweetIDs(timeline, true) {
		tw := tweets[tid]
		if author, _ := lookupString(tw, "user_id_str"); author != userID {
			continue
		}
		if n, _ := lookupInt(tw, "reply_count"); n <= 0 {
			continue
		}

		conv, err := s.Conversation(ctx, tid, 20, "")
		if err != nil {
			return nil, err
		}
		replies, err := repliesTo(conv, tid, userID)
		if err != nil {
			return nil, err
		}
		for _, replyID := range replies {
			view, err := s.Conversation(ctx, replyID, 20, "")
			if err != nil {
				return nil, err
			}
			viewTweets, ok := tweetsOf(view)
			if !ok {
				return nil, errMissingTweets
			}
			if _, ok := viewTweets[replyID]; !ok {
				continue
			}
			_, parentVisible := viewTweets[tid]
			return &GhostResult{Tweet: tid, Reply: replyID, Ban: !parentVisible}, nil
		}
	}
	return nil, nil
}

// repliesTo lists replies to tid written by someone other than userID, in timeline
// order followed by any remaining tweets newest first.
func repliesTo(conv map[string]any, tid, userID string) ([]string, error) {
	tweets, ok := tweetsOf(conv)
	if !ok {
		return nil, errMissingTweets
	}

	ordered := OrderedTweetIDs(conv, true)
	var rest []string
	for id := range tweets {
		if !containsID(ordered, id) {
			rest = append(rest, id)
		}
	}
	sortIDsDesc(rest)

	var out []string
	for _, id := range append(ordered, rest...) {
		if id == tid {
			continue
		}
		if parent, _ := lookupString(tweets[id], "in_reply_to_status_id_str"); parent != tid {
			continue
		}
		if author, _ := lookupString(tweets[id], "user_id_str"); author == userID {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
