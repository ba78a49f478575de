package shadowban

import "context"

// defaultRetries retries a code 353 response once.
const defaultRetries = 1

// Profile fetches the public profile of screenName.
func (s *Session) Profile(ctx context.Context, screenName string) (map[string]any, error) {
	return s.Call(ctx, epProfile, profileURL(s.cfg.APIBase, screenName), defaultRetries)
}

// Search runs a latest-mode adaptive search.
func (s *Session) Search(ctx context.Context, query string) (map[string]any, error) {
	return s.Call(ctx, epSearch, searchURL(s.cfg.APIBase, query, true), defaultRetries)
}

// Typeahead queries user suggestions for query.
func (s *Session) Typeahead(ctx context.Context, query string) (map[string]any, error) {
	return s.Call(ctx, epTypeahead, typeaheadURL(s.cfg.APIBase, query), defaultRetries)
}

// ProfileTimeline fetches the tweets and replies timeline of userID.
func (s *Session) ProfileTimeline(ctx context.Context, userID string) (map[string]any, error) {
	return s.Call(ctx, epProfileTL, profileTimelineURL(s.cfg.APIBase, userID), defaultRetries)
}

// Conversation fetches the conversation around tweetID. An empty cursor fetches the
// first page.
func (s *Session) Conversation(ctx context.Context, tweetID string, count int, cursor string) (map[string]any, error) {
	return s.Call(ctx, epConversation, conversationURL(s.cfg.APIBase, tweetID, min(count, maxConversationCount), cursor), defaultRetries)
}
