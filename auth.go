package shadowban

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/pquerna/otp/totp"
)

// ErrLoginDenied is returned when the platform refuses the login flow outright.
var ErrLoginDenied = errors.New("login denied")

// arkosePublicKey is the FunCaptcha site key of the login page.
const arkosePublicKey = "0152B4EB-D2DC-460A-89A1-629838B529C9"

const (
	guestActivateAttempts = 3
	maxLoginRounds        = 10
)

var guestBackoff = stealth.BackoffConfig{
	InitialWait: 2 * time.Second,
	MaxWait:     30 * time.Second,
	Multiplier:  2.0,
	JitterPct:   0.3,
}

// activateGuestToken fetches a guest token, backing off between failed attempts.
func (s *Session) activateGuestToken(ctx context.Context, t Transport, ct0 string) (string, error) {
	var lastErr error
	for attempt := range guestActivateAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(guestBackoff.Duration(attempt)):
			}
		}
		token, err := s.requestGuestToken(t, ct0)
		if err == nil {
			return token, nil
		}
		lastErr = err
		slog.Warn("guest token activation failed", slog.Int("attempt", attempt+1), slog.Any("error", err))
	}
	return "", fmt.Errorf("activate guest token after %d attempts: %w", guestActivateAttempts, lastErr)
}

func (s *Session) requestGuestToken(t Transport, ct0 string) (string, error) {
	headers := map[string]string{
		"authorization": "Bearer " + s.cfg.BearerToken,
		"content-type":  "application/json",
		"user-agent":    s.userAgent(),
	}
	if ct0 != "" {
		headers["x-csrf-token"] = ct0
	}
	body, _, status, err := t.DoWithHeaderOrder("POST", guestActivateURL(s.cfg.APIBase), headers, nil, headerOrder)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("%s: HTTP %d", epGuest, status)
	}
	var resp struct {
		GuestToken string `json:"guest_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse guest token: %w", err)
	}
	if resp.GuestToken == "" {
		return "", errors.New("empty guest token in response")
	}
	return resp.GuestToken, nil
}

func (s *Session) userAgent() string {
	if s.profile.UserAgent != "" {
		return s.profile.UserAgent
	}
	return defaultUserAgent
}

type flowResponse struct {
	FlowToken string `json:"flow_token"`
	Subtasks  []struct {
		SubtaskID string `json:"subtask_id"`
	} `json:"subtasks"`
}

func (fr *flowResponse) next() string {
	if len(fr.Subtasks) == 0 {
		return ""
	}
	return fr.Subtasks[0].SubtaskID
}

// loginFlowInit starts the onboarding flow in the web client's shape.
var loginFlowInit = map[string]any{
	"input_flow_data": map[string]any{
		"flow_context": map[string]any{
			"debug_overrides": map[string]any{},
			"start_location":  map[string]any{"location": "splash_screen"},
		},
	},
	"subtask_versions": map[string]int{
		"action_list": 2, "alert_dialog": 1, "check_logged_in_account": 1, "choice_selection": 3,
		"enter_email": 2, "enter_password": 5, "enter_phone": 2, "enter_text": 5, "enter_username": 2,
		"js_instrumentation": 1, "menu_dialog": 1, "open_link": 1, "settings_list": 7, "wait_spinner": 3,
	},
}

// loginFlow walks the onboarding subtasks for the session's credential and returns
// the resulting auth_token and ct0 cookies.
func (s *Session) loginFlow(ctx context.Context, t Transport) (authToken, ct0 string, err error) {
	cred := s.cred
	slog.Info("logging in", slog.String("user", cred.ScreenName))

	guestToken, err := s.activateGuestToken(ctx, t, "")
	if err != nil {
		return "", "", fmt.Errorf("get guest token: %w", err)
	}
	headers := loginFlowHeaders(s.cfg.BearerToken, guestToken, s.userAgent())

	fr, err := s.submitFlow(t, headers, loginFlowURL(s.cfg.APIBase, true), loginFlowInit)
	if err != nil {
		return "", "", fmt.Errorf("init login flow: %w", err)
	}

	done := false
	for round := 0; round < maxLoginRounds && !done && fr.next() != ""; round++ {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		id := fr.next()
		slog.Debug("login subtask", slog.String("user", cred.ScreenName), slog.String("subtask", id))

		var input map[string]any
		switch id {
		case "LoginJsInstrumentationSubtask":
			input = map[string]any{"js_instrumentation": map[string]any{"response": "{}", "link": "next_link"}}

		case "LoginEnterUserIdentifierSSO":
			input = map[string]any{"settings_list": map[string]any{
				"setting_responses": []any{map[string]any{
					"key":           "user_identifier",
					"response_data": map[string]any{"text_data": map[string]any{"result": cred.ScreenName}},
				}},
				"link": "next_link",
			}}

		case "LoginEnterAlternateIdentifierSubtask":
			ident := cred.Email
			if ident == "" {
				ident = cred.ScreenName
			}
			input = map[string]any{"enter_text": map[string]any{"text": ident, "link": "next_link"}}

		case "LoginEnterPassword":
			input = map[string]any{"enter_password": map[string]any{"password": cred.Password, "link": "next_link"}}

		case "LoginTwoFactorAuthChallenge":
			if cred.TOTPSecret == "" {
				return "", "", fmt.Errorf("2FA required but no TOTP secret for %s", cred.ScreenName)
			}
			code, err := totp.GenerateCode(cred.TOTPSecret, s.cfg.Now())
			if err != nil {
				return "", "", fmt.Errorf("TOTP code for %s: %w", cred.ScreenName, err)
			}
			input = map[string]any{"enter_text": map[string]any{"text": code, "link": "next_link"}}

		case "LoginSuccessSubtask", "AccountDuplicationCheck":
			done = true
			continue

		case "DenyLoginSubtask":
			return "", "", fmt.Errorf("%w for %s", ErrLoginDenied, cred.ScreenName)

		case "LoginArkoseChallenge", "LoginArkoseCaptcha", "LoginEnterRecaptcha":
			if s.cfg.CaptchaSolver == nil {
				return "", "", fmt.Errorf("captcha required but no solver configured for %s", cred.ScreenName)
			}
			token, err := s.cfg.CaptchaSolver.Solve(ctx, arkosePublicKey, "https://twitter.com")
			if err != nil {
				return "", "", fmt.Errorf("captcha for %s: %w", cred.ScreenName, err)
			}
			slog.Info("captcha solved for login", slog.String("user", cred.ScreenName))
			input = map[string]any{"web_modal": map[string]any{
				"completion_deeplink": "twitter://onboarding/web_modal/next_link?access_token=" + token,
			}}

		default:
			slog.Warn("unknown login subtask, skipping", slog.String("user", cred.ScreenName), slog.String("subtask", id))
			input = map[string]any{"action_list": map[string]any{"link": "next_link"}}
		}

		input["subtask_id"] = id
		payload := map[string]any{"flow_token": fr.FlowToken, "subtask_inputs": []any{input}}
		if fr, err = s.submitFlow(t, headers, loginFlowURL(s.cfg.APIBase, false), payload); err != nil {
			return "", "", fmt.Errorf("login subtask %s: %w", id, err)
		}
	}

	authToken = cookieValue(t, "auth_token")
	if authToken == "" {
		return "", "", fmt.Errorf("login completed but no auth_token in cookies for %s", cred.ScreenName)
	}
	if ct0 = cookieValue(t, "ct0"); ct0 == "" {
		ct0 = GenerateCT0()
	}
	slog.Info("login successful", slog.String("user", cred.ScreenName))
	return authToken, ct0, nil
}

func (s *Session) submitFlow(t Transport, headers map[string]string, rawURL string, payload any) (*flowResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	body, _, status, err := t.DoWithHeaderOrder("POST", rawURL, headers, bytes.NewReader(data), headerOrder)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("%s: HTTP %d: %s", epLoginFlow, status, string(body[:min(300, len(body))]))
	}
	var fr flowResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, fmt.Errorf("parse flow response: %w", err)
	}
	if fr.FlowToken == "" {
		return nil, fmt.Errorf("empty flow_token in response: %s", string(body[:min(200, len(body))]))
	}
	return &fr, nil
}
