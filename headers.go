package shadowban

import (
	"maps"

	stealth "github.com/anatolykoptev/go-stealth"
)

// defaultUserAgent is the fallback User-Agent when a session has no browser profile.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// baseHeaders are sent by every session before identity-specific headers are added.
func baseHeaders(userAgent string) map[string]string {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	h := map[string]string{
		"x-twitter-active-user":     "yes",
		"x-twitter-client-language": "en",
		"user-agent":                userAgent,
		"accept":                    "*/*",
		"accept-language":           "en-US,en;q=0.9",
		"accept-encoding":           "gzip, deflate, br",
		"referer":                   "https://twitter.com/",
		"origin":                    "https://twitter.com",
	}
	if ch := stealth.ClientHintsHeaders(userAgent); ch != nil {
		maps.Copy(h, ch)
	}
	return h
}

// guestHeaders adds the guest identity on top of base headers.
func guestHeaders(h map[string]string, bearer, guestToken, ct0 string) {
	h["authorization"] = "Bearer " + bearer
	if guestToken != "" {
		h["x-guest-token"] = guestToken
	}
	if ct0 != "" {
		h["x-csrf-token"] = ct0
		h["cookie"] = "ct0=" + ct0
	}
}

// accountHeaders adds an authenticated identity on top of base headers.
func accountHeaders(h map[string]string, bearer, authToken, ct0 string) {
	h["authorization"] = "Bearer " + bearer
	h["x-twitter-auth-type"] = "OAuth2Session"
	h["x-csrf-token"] = ct0
	h["cookie"] = "auth_token=" + authToken + "; ct0=" + ct0
}

// loginFlowHeaders returns headers required for the login flow API.
func loginFlowHeaders(bearer, guestToken, userAgent string) map[string]string {
	h := baseHeaders(userAgent)
	h["authorization"] = "Bearer " + bearer
	h["content-type"] = "application/json"
	h["x-guest-token"] = guestToken
	return h
}

// headerOrder is the header order used for TLS fingerprint consistency.
var headerOrder = []string{
	"authorization",
	"content-type",
	"x-csrf-token",
	"x-guest-token",
	"x-twitter-auth-type",
	"x-twitter-active-user",
	"x-twitter-client-language",
	"sec-ch-ua",
	"sec-ch-ua-mobile",
	"sec-ch-ua-platform",
	"cookie",
	"user-agent",
	"accept",
	"accept-language",
	"accept-encoding",
	"referer",
	"origin",
}
