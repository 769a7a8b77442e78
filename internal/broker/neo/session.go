package neo

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"
)

type loginData struct {
	Token  string `json:"token"`
	Sid    string `json:"sid"`
	UserID string `json:"userId"`
}

// OTPPrompt supplies the one-time password for the second login factor,
// typically by asking the operator for the code sent over SMS.
type OTPPrompt func() (string, error)

// Login performs the two-step session handshake: password validation
// for a view token, then OTP validation for the trading session token.
// When a TOTP secret is configured the code is generated locally and
// the prompt is never invoked.
func (c *Client) Login(ctx context.Context, prompt OTPPrompt) error {
	var viewResp neoResponse[loginData]
	body := map[string]any{
		"mobileNumber": c.mobile,
		"password":     c.password,
	}
	if err := c.doRequest(ctx, http.MethodPost, "/login/1.0/login/v2/validate", nil, body, "", &viewResp); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if viewResp.Data.Token == "" {
		return fmt.Errorf("login failed: empty view token")
	}

	c.sessionMu.Lock()
	c.viewToken = viewResp.Data.Token
	c.sid = viewResp.Data.Sid
	c.sessionMu.Unlock()

	code, err := c.secondFactor(prompt)
	if err != nil {
		return err
	}

	var sessionResp neoResponse[loginData]
	body = map[string]any{
		"userId": viewResp.Data.UserID,
		"otp":    code,
	}
	if err := c.doRequest(ctx, http.MethodPost, "/login/1.0/login/v2/validate", nil, body, viewResp.Data.Token, &sessionResp); err != nil {
		return fmt.Errorf("2fa validation failed: %w", err)
	}
	if sessionResp.Data.Token == "" {
		return fmt.Errorf("2fa validation failed: empty session token")
	}

	c.sessionMu.Lock()
	c.sessionToken = sessionResp.Data.Token
	if sessionResp.Data.Sid != "" {
		c.sid = sessionResp.Data.Sid
	}
	c.sessionMu.Unlock()

	c.log.WithComponent("neo").Info("Session established.")
	return nil
}

func (c *Client) secondFactor(prompt OTPPrompt) (string, error) {
	if c.totpSecret != "" {
		code, err := totp.GenerateCode(c.totpSecret, time.Now())
		if err != nil {
			return "", fmt.Errorf("failed to generate totp code: %w", err)
		}
		return code, nil
	}
	if prompt == nil {
		return "", fmt.Errorf("no totp secret configured and no otp prompt available")
	}
	code, err := prompt()
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("otp cannot be empty")
	}
	return code, nil
}
