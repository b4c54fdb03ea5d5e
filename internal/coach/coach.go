// Package coach asks a hosted chat-completion model to explain a move.
package coach

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/chess-tutor/internal/msgcat"
	"github.com/park285/chess-tutor/internal/remote"
)

const (
	StylePosition = "position"
	StyleDetailed = "detailed"

	defaultAPIVersion  = "2025-02-01-preview"
	defaultDeployment  = "gpt-4"
	defaultTemperature = 0.7
)

var ErrEmptyCompletion = errors.New("completion has no content")

type Config struct {
	Endpoint    string
	APIKey      string
	APIVersion  string
	Deployment  string
	Style       string
	Temperature float64
	// MaxTokens overrides the per-style default (250 position, 600 detailed).
	MaxTokens int
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Request describes the position and candidate move to explain.
type Request struct {
	FEN     string
	MoveSAN string
	// Side is the color that plays MoveSAN ("White" or "Black").
	Side string
}

type Client struct {
	cfg     Config
	url     string
	http    *remote.Client
	catalog *msgcat.Catalog
	logger  *zap.Logger
}

// New validates cfg before any request is possible. Missing secrets yield a
// remote.KindConfig error.
func New(cfg Config, httpClient *remote.Client, catalog *msgcat.Catalog, logger *zap.Logger) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		missing = append(missing, "AZURE_OPENAI_ENDPOINT")
	}
	if len(missing) > 0 {
		return nil, remote.ConfigError("coach", fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	if catalog == nil {
		return nil, remote.ConfigError("coach", errors.New("message catalog is required"))
	}
	if httpClient == nil {
		httpClient = remote.NewClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Deployment == "" {
		cfg.Deployment = defaultDeployment
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	switch cfg.Style {
	case StylePosition, StyleDetailed:
	case "":
		cfg.Style = StylePosition
	default:
		return nil, remote.ConfigError("coach", fmt.Errorf("unknown prompt style %q", cfg.Style))
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 250
		if cfg.Style == StyleDetailed {
			cfg.MaxTokens = 600
		}
	}

	u, err := completionsURL(cfg)
	if err != nil {
		return nil, remote.ConfigError("coach", err)
	}
	return &Client{cfg: cfg, url: u, http: httpClient, catalog: catalog, logger: logger}, nil
}

func completionsURL(cfg Config) (string, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"))
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("endpoint %q must be an absolute URL", cfg.Endpoint)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/openai/deployments/" + url.PathEscape(cfg.Deployment) + "/chat/completions"
	q := base.Query()
	q.Set("api-version", cfg.APIVersion)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Explain returns the model's explanation of req.MoveSAN in req.FEN.
func (c *Client) Explain(ctx context.Context, req Request) (string, error) {
	messages, err := c.messages(req)
	if err != nil {
		return "", err
	}
	return c.Complete(ctx, messages)
}

func (c *Client) messages(req Request) ([]Message, error) {
	side := req.Side
	if side == "" {
		side = "White"
	}
	opponent := "Black"
	if strings.EqualFold(side, "black") {
		opponent = "White"
	}
	data := map[string]string{
		"FEN":      req.FEN,
		"Move":     req.MoveSAN,
		"Side":     side,
		"Opponent": opponent,
	}
	system, err := c.catalog.Render("coach.system", data)
	if err != nil {
		return nil, remote.ConfigError("coach", fmt.Errorf("system prompt: %w", err))
	}
	user, err := c.catalog.Render("coach.user."+c.cfg.Style, data)
	if err != nil {
		return nil, remote.ConfigError("coach", fmt.Errorf("user prompt: %w", err))
	}
	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, nil
}

// Complete sends a role-tagged message list and returns the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	var out chatResponse
	err := c.http.DoJSON(ctx, remote.Request{
		Op:      "coach",
		URL:     c.url,
		Headers: map[string]string{"api-key": c.cfg.APIKey},
		Retry:   true,
	}, chatRequest{
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}, &out)
	if err != nil {
		c.logger.Warn("coach completion failed", zap.String("kind", remote.KindOf(err).String()), zap.Error(err))
		return "", err
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", &remote.Error{Kind: remote.KindMalformed, Op: "coach", Err: ErrEmptyCompletion}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Fallback is the fixed text shown when no explanation is available.
func (c *Client) Fallback() string {
	return c.catalog.Text("coach.fallback", nil, "Error getting explanation.")
}

func (c *Client) Style() string { return c.cfg.Style }
