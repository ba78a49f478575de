package shadowban

import (
	"context"
	"log/slog"
)

const (
	barrierProbeCount = 50
	// barrierMaxReplies skips threads too large to page through reliably.
	barrierMaxReplies = 500
)

var barrierCursors = []string{cursorShowMoreThreads, cursorShowMoreThreadsPrompt}

// replyBarrier checks whether the account's replies are pushed behind "show more
// replies" in other people's threads. The first usable reply decides the verdict;
// nil means none could be reached.
func (d *Detector) replyBarrier(ctx context.Context, s *Session, userID string) *BarrierResult {
	log := slog.With(slog.String("user_id", userID))

	timeline, err := s.ProfileTimeline(ctx, userID)
	if err != nil {
		log.Warn("barrier test failed", slog.Any("error", err))
		return nil
	}
	tweets, ok := tweetsOf(timeline)
	if !ok {
		log.Warn("barrier test failed", slog.Any("error", errMissingTweets))
		return nil
	}

	candidates := barrierCandidates(tweets, OrderedTweetIDs(timeline, true), userID)
	if len(candidates) == 0 {
		return &BarrierResult{Error: ErrNoReplies}
	}

	for _, tid := range candidates {
		parentID, _ := lookupString(tweets[tid], "in_reply_to_status_id_str")

		parentView, err := s.Conversation(ctx, parentID, barrierProbeCount, "")
		if err != nil {
			log.Warn("barrier test failed", slog.Any("error", err))
			return nil
		}
		if !usableThread(parentView, parentID, userID) {
			continue
		}
		log.Debug("barrier candidate", slog.String("tweet", tid), slog.String("in_reply_to", parentID))

		ref := d.pool.BestAccount()
		if ref == nil {
			ref = s
		}
		return pageForReply(ctx, ref, tid, parentID)
	}
	return nil
}

// barrierCandidates returns the account's own replies into threads it did not start.
func barrierCandidates(tweets map[string]any, ordered []string, userID string) []string {
	var out []string
	for _, tid := range ordered {
		tw := tweets[tid]
		if author, _ := lookupString(tw, "user_id_str"); author != userID {
			continue
		}
		if parent, ok := lookupString(tw, "in_reply_to_status_id_str"); !ok || parent == "" {
			continue
		}
		if convID, ok := lookupString(tw, "conversation_id_str"); ok {
			if root, ok := lookupMap(tweets, convID); ok {
				if author, _ := lookupString(root, "user_id_str"); author == userID {
					continue
				}
			}
		}
		out = append(out, tid)
	}
	return out
}

// usableThread reports whether parentID is visible in its own view, belongs to a
// conversation started by someone else and is small enough to page.
func usableThread(view map[string]any, parentID, userID string) bool {
	tweets, ok := tweetsOf(view)
	if !ok {
		return false
	}
	parent, ok := lookupMap(tweets, parentID)
	if !ok {
		return false
	}
	convID, _ := lookupString(parent, "conversation_id_str")
	root, ok := lookupMap(tweets, convID)
	if !ok {
		return false
	}
	if author, _ := lookupString(root, "user_id_str"); author == userID {
		return false
	}
	n, _ := lookupInt(parent, "reply_count")
	return n <= barrierMaxReplies
}

// pageForReply looks for tid in the parent's thread, first directly, then behind
// each "show more" cursor in turn.
func pageForReply(ctx context.Context, ref *Session, tid, parentID string) *BarrierResult {
	log := slog.With(slog.String("tweet", tid), slog.String("session", ref.Identity()))

	page, err := ref.Conversation(ctx, parentID, maxConversationCount, "")
	if err != nil {
		log.Warn("barrier reference fetch failed", slog.Any("error", err))
		return nil
	}
	if _, ok := tweetsOf(page); !ok {
		log.Debug("barrier reference view has no tweets")
		return nil
	}
	if containsID(OrderedTweetIDs(page, true), tid) {
		return &BarrierResult{Ban: false, Tweet: tid, InReplyTo: parentID}
	}

	for stage, cursorType := range barrierCursors {
		cursor, ok := findCursor(page, cursorType)
		if !ok {
			continue
		}
		next, err := ref.Conversation(ctx, parentID, maxConversationCount, cursor)
		if err != nil {
			log.Warn("barrier page fetch failed", slog.Int("stage", stage), slog.Any("error", err))
			return nil
		}
		if _, ok := tweetsOf(next); !ok {
			return nil
		}
		if containsID(OrderedTweetIDs(next, true), tid) {
			return &BarrierResult{Ban: true, Tweet: tid, InReplyTo: parentID, Stage: &stage}
		}
		page = next
	}

	// the replied-to tweet was most likely deleted
	log.Debug("reply not found behind any cursor")
	return nil
}
