// Package speech turns explanation text into audio with the Azure text-to-speech REST API.
package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/chess-tutor/internal/remote"
)

const (
	DefaultVoice        = "en-US-JennyNeural"
	DefaultOutputFormat = "audio-16khz-128kbitrate-mono-mp3"
)

var ErrEmptyText = errors.New("speech: empty text")

type Config struct {
	APIKey string
	Region string
	// Endpoint overrides the regional synthesis URL.
	Endpoint     string
	Voice        string
	OutputFormat string
}

type Client struct {
	cfg    Config
	url    string
	http   *remote.Client
	logger *zap.Logger
}

func New(cfg Config, httpClient *remote.Client, logger *zap.Logger) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "AZURE_SPEECH_API_KEY")
	}
	if strings.TrimSpace(cfg.Region) == "" && strings.TrimSpace(cfg.Endpoint) == "" {
		missing = append(missing, "SPEECH_REGION")
	}
	if len(missing) > 0 {
		return nil, remote.ConfigError("speech", fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = DefaultOutputFormat
	}
	if httpClient == nil {
		httpClient = remote.NewClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	u := strings.TrimSpace(cfg.Endpoint)
	if u == "" {
		u = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", strings.TrimSpace(cfg.Region))
	}
	return &Client{cfg: cfg, url: u, http: httpClient, logger: logger}, nil
}

// Synthesize returns encoded audio for text in the configured voice.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	body, err := ssml(c.cfg.Voice, text)
	if err != nil {
		return nil, &remote.Error{Kind: remote.KindMalformed, Op: "speech", Err: err}
	}
	resp, err := c.http.Do(ctx, remote.Request{
		Op:          "speech",
		URL:         c.url,
		ContentType: "application/ssml+xml",
		Headers: map[string]string{
			"Ocp-Apim-Subscription-Key": c.cfg.APIKey,
			"X-Microsoft-OutputFormat":  c.cfg.OutputFormat,
		},
		Body:  body,
		Retry: true,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, &remote.Error{Kind: remote.KindMalformed, Op: "speech", Status: resp.Status, Err: errors.New("empty audio")}
	}
	return resp.Body, nil
}

// Speak synthesizes text and hands the audio to deliver. Failures are logged
// and never returned.
func (c *Client) Speak(ctx context.Context, text string, deliver func([]byte)) {
	audio, err := c.Synthesize(ctx, text)
	if err != nil {
		c.logger.Warn("speech synthesis failed", zap.String("kind", remote.KindOf(err).String()), zap.Error(err))
		return
	}
	c.logger.Debug("speech synthesis completed", zap.Int("bytes", len(audio)))
	if deliver != nil {
		deliver(audio)
	}
}

func (c *Client) Voice() string { return c.cfg.Voice }

func ssml(voice, text string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="en-US"><voice name="`)
	if err := xml.EscapeText(&b, []byte(voice)); err != nil {
		return nil, err
	}
	b.WriteString(`">`)
	if err := xml.EscapeText(&b, []byte(text)); err != nil {
		return nil, err
	}
	b.WriteString(`</voice></speak>`)
	return b.Bytes(), nil
}
