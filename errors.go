package shadowban

import (
	"errors"
	"strconv"
	"time"
)

// ErrorCode is a platform API error code as returned in `{"errors":[{"code":N}]}`.
type ErrorCode int

const (
	CodeNotFound           ErrorCode = 50  // user not found
	CodeSuspended          ErrorCode = 63  // user suspended
	CodeRateLimited        ErrorCode = 88  // rate limit exceeded
	CodeBadGuestToken      ErrorCode = 239 // bad guest token, needs a new one
	CodeAccountLocked      ErrorCode = 326 // session account locked
	CodeBadGuestTokenRetry ErrorCode = 353 // transient token mismatch, retry once
)

// ErrUnexpectedAPI is returned by a probe when the profile lookup reports an error
// code other than not-found or suspended.
var ErrUnexpectedAPI = errors.New("unexpected API error")

// errorCodes returns every error code present in a decoded response.
func errorCodes(resp map[string]any) []ErrorCode {
	list, ok := lookupSlice(resp, "errors")
	if !ok {
		return nil
	}
	var codes []ErrorCode
	for _, e := range list {
		if code, ok := lookupInt(e, "code"); ok {
			codes = append(codes, ErrorCode(code))
		}
	}
	return codes
}

// hasError reports whether the response carries the given error code.
func hasError(resp map[string]any, code ErrorCode) bool {
	for _, c := range errorCodes(resp) {
		if c == code {
			return true
		}
	}
	return false
}

// unexpectedErrors returns the error codes in resp that are not listed in allowed.
func unexpectedErrors(resp map[string]any, allowed ...ErrorCode) []ErrorCode {
	var out []ErrorCode
	list, _ := lookupSlice(resp, "errors")
	for _, e := range list {
		code, ok := lookupInt(e, "code")
		if !ok {
			// an error entry without a code is never one of the expected ones
			out = append(out, 0)
			continue
		}
		known := false
		for _, a := range allowed {
			if ErrorCode(code) == a {
				known = true
				break
			}
		}
		if !known {
			out = append(out, ErrorCode(code))
		}
	}
	return out
}

// parseRateLimitReset parses the X-Rate-Limit-Reset unix timestamp header.
// Falls back to 15 minutes from now if missing or invalid.
func parseRateLimitReset(v string) time.Time {
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(ts, 0)
	}
	return time.Now().Add(15 * time.Minute)
}
