package shadowban

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	defaultAPIBase = "https://api.twitter.com"

	// defaultBearerToken is the public web-app bearer token.
	defaultBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"
)

// Endpoint names used for rate limiting, health and log attributes.
const (
	epProfile      = "UserShow"
	epSearch       = "AdaptiveSearch"
	epTypeahead    = "Typeahead"
	epProfileTL    = "ProfileTimeline"
	epConversation = "Conversation"
	epGuest        = "GuestActivate"
	epLoginFlow    = "LoginFlow"
)

// maxConversationCount is the deepest conversation page the API serves.
const maxConversationCount = 1000

func profileURL(base, screenName string) string {
	return base + "/1.1/users/show.json?screen_name=" + url.QueryEscape(screenName)
}

func searchURL(base, query string, live bool) string {
	u := base + "/2/search/adaptive.json?q=" + url.QueryEscape(query) + "&count=20&spelling_corrections=0"
	if live {
		u += "&tweet_search_mode=live"
	}
	return u
}

func typeaheadURL(base, query string) string {
	return base + "/1.1/search/typeahead.json?src=search_box&result_type=users&q=" + url.QueryEscape(query)
}

func profileTimelineURL(base, userID string) string {
	return fmt.Sprintf("%s/2/timeline/profile/%s.json?include_tweet_replies=1&include_want_retweets=0&include_reply_count=1&count=1000",
		base, url.PathEscape(userID))
}

func conversationURL(base, tweetID string, count int, cursor string) string {
	u := base + "/2/timeline/conversation/" + url.PathEscape(tweetID) +
		".json?include_reply_count=1&send_error_codes=true&count=" + strconv.Itoa(count)
	if cursor != "" {
		u += "&cursor=" + url.QueryEscape(cursor)
	}
	return u
}

func guestActivateURL(base string) string {
	return base + "/1.1/guest/activate.json"
}

func loginFlowURL(base string, init bool) string {
	if init {
		return base + "/1.1/onboarding/task.json?flow_name=login"
	}
	return base + "/1.1/onboarding/task.json"
}
