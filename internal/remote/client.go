// Package remote is the shared fasthttp client used for the hosted language
// model and speech APIs. It retries transient failures and classifies errors.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type Kind int

const (
	KindConfig Kind = iota + 1
	KindTransient
	KindRejected
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is returned by every call through Client.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

func ConfigError(op string, err error) error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

type Client struct {
	http   *fasthttp.Client
	logger *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
	userAgent      string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		logger:         zap.NewNop(),
		defaultTimeout: 30 * time.Second,
		retryMax:       3,
		userAgent:      "chess-tutor",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Request struct {
	Op          string
	Method      string
	URL         string
	Headers     map[string]string
	ContentType string
	Body        []byte
	Retry       bool
}

type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Do sends req, retrying network errors and 429/5xx responses with backoff when
// req.Retry is set. The response body is copied out of fasthttp's pooled buffer.
func (c *Client) Do(ctx context.Context, in Request) (Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	method := in.Method
	if method == "" {
		method = fasthttp.MethodPost
	}
	req.Header.SetMethod(method)
	req.SetRequestURI(in.URL)
	req.Header.SetUserAgent(c.userAgent)
	if in.ContentType != "" {
		req.Header.SetContentType(in.ContentType)
	}
	for k, v := range in.Headers {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}
	if len(in.Body) > 0 {
		req.SetBody(in.Body)
	}

	attempts := 1
	if in.Retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{}, &Error{Kind: KindTransient, Op: in.Op, Err: err}
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = &Error{Kind: KindTransient, Op: in.Op, Err: err}
		} else {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return Response{
					Status:      status,
					ContentType: string(resp.Header.ContentType()),
					Body:        append([]byte(nil), resp.Body()...),
				}, nil
			}
			body := truncate(string(resp.Body()), 512)
			if !shouldRetryStatus(status) {
				return Response{}, &Error{Kind: KindRejected, Op: in.Op, Status: status, Err: errors.New(body)}
			}
			lastErr = &Error{Kind: KindTransient, Op: in.Op, Status: status, Err: errors.New(body)}
		}

		if attempt == attempts {
			break
		}
		c.logger.Debug("remote call retry",
			zap.String("op", in.Op),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return Response{}, lastErr
		}
	}
	return Response{}, lastErr
}

// DoJSON marshals in, sends it, and decodes the response into out.
func (c *Client) DoJSON(ctx context.Context, in Request, payload any, out any) error {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &Error{Kind: KindMalformed, Op: in.Op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		in.Body = raw
		in.ContentType = "application/json"
	}
	resp, err := c.Do(ctx, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &Error{Kind: KindMalformed, Op: in.Op, Status: resp.Status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
