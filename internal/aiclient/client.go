package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// MaxInputChars is a hard safety ceiling on a single request, counted in
// code points. The chunker keeps requests well below this; the ceiling only
// guards against callers bypassing the step plan.
const MaxInputChars = 32000

const defaultTimeout = 60 * time.Second

// Config configures the translation client.
type Config struct {
	APIKey string
	APIURL string
	Model  string

	// Timeout bounds a single upstream request.
	Timeout time.Duration

	// RequestsPerMinute throttles outbound calls. Zero disables throttling.
	RequestsPerMinute int

	// SiteURL and AppName populate the HTTP-Referer and X-Title headers
	// some providers use for attribution.
	SiteURL string
	AppName string
}

func (c Config) validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("api url is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// Client translates text through an OpenAI-compatible chat completions API.
// Thread-safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}, nil
}

// Translate sends text for translation from sourceLang to targetLang and
// returns the translated text. Failures come back as *Error with the
// upstream status code when one was received.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", &Error{Message: "API key is missing"}
	}
	if len([]rune(text)) > MaxInputChars {
		return "", &Error{Message: fmt.Sprintf("content too large for a single request (max %d chars)", MaxInputChars)}
	}

	request := ChatRequest{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt(sourceLang, targetLang)},
			{Role: "user", Content: text},
		},
	}

	response, err := c.chatCompletion(ctx, request)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", &Error{Message: "empty response from AI"}
	}
	translated := strings.TrimSpace(response.Choices[0].Message.Content)
	if translated == "" {
		return "", &Error{Message: "empty response from AI"}
	}
	return translated, nil
}

// TestConnection performs a trivial round trip to verify credentials and
// reachability. Used by operational diagnostics, not by the job pipeline.
func (c *Client) TestConnection(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return &Error{Message: "API key is missing"}
	}

	request := ChatRequest{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: "user", Content: `Respond with "Connected"`},
		},
	}

	_, err := c.chatCompletion(ctx, request)
	if err == nil {
		return nil
	}

	switch StatusCode(err) {
	case http.StatusUnauthorized:
		return &Error{Message: "invalid API key", StatusCode: http.StatusUnauthorized}
	case http.StatusTooManyRequests:
		return &Error{Message: "rate limit exceeded", StatusCode: http.StatusTooManyRequests}
	}
	return err
}

func (c *Client) chatCompletion(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, newTransportError(err)
		}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.APIURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	}
	if c.cfg.AppName != "" {
		req.Header.Set("X-Title", c.cfg.AppName)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(err)
	}

	var chatResponse ChatResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, &chatResponse); err != nil {
			return nil, &Error{Message: fmt.Sprintf("malformed response: %v", err), StatusCode: resp.StatusCode}
		}
		return &chatResponse, nil
	}

	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &chatResponse) == nil && chatResponse.Error != nil && chatResponse.Error.Message != "" {
		message = chatResponse.Error.Message
	}
	if message == "" {
		message = "unknown error"
	}
	return nil, &Error{Message: message, StatusCode: resp.StatusCode}
}

func systemPrompt(sourceLang, targetLang string) string {
	return "You are a professional technical translator.\n" +
		"Translate the following content from " + sourceLang + " to " + targetLang + ".\n" +
		"Preserve meaning, formatting, HTML tags, units, and product structure.\n" +
		"Do not add explanations or comments.\n" +
		"Return only the translated content."
}
