package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	apiKey      string
	fromEmail   string
	apiBaseURL  string
	frontendURL string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(apiKey, fromEmail, apiBaseURL, frontendURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		fromEmail:   fromEmail,
		apiBaseURL:  strings.TrimRight(apiBaseURL, "/"),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// SendVerification emails the account's verification link.
func (c *Client) SendVerification(ctx context.Context, toEmail, name, token string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing api key")
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", c.frontendURL, url.QueryEscape(token))
	textBody := fmt.Sprintf("Hi %s,\n\nPlease open the link below to verify your email address:\n\n%s", name, link)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>Please click the link below to verify your email address:</p><a href="%s">Verify Email</a>`,
		html.EscapeString(name), link,
	)

	body, err := json.Marshal(resendEmail{
		From:    c.fromEmail,
		To:      []string{toEmail},
		Subject: "Verify Your Email for AI Prompt Generator",
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("resend API error: status %d", resp.StatusCode)
	}

	return nil
}
