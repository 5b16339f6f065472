package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 15 * time.Second

type tokenKey struct{}

// WithToken returns a context carrying the caller's bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom extracts the bearer token set by WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client 调用外部 REST 后端。每次调用都是一次 JSON 请求，不做自动重试。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTracer sets the tracer used for per-call spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend base url %q: %w", baseURL, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		tracer:     otel.Tracer("murph/backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call performs one request. classify maps backend failures to a Kind for op.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body, out any, classify classifier) error {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.Internal, op, fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return apperr.Wrap(apperr.Internal, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		callErr := transportError(op, err)
		span.RecordError(callErr)
		span.SetStatus(codes.Error, string(apperr.KindOf(callErr)))
		c.logger.Warn("backend call failed", "op", op, "path", path, "error", err)
		return callErr
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		callErr := transportError(op, fmt.Errorf("read response: %w", err))
		span.RecordError(callErr)
		span.SetStatus(codes.Error, "read body")
		return callErr
	}

	c.logger.Debug("backend call", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		callErr := decodeError(op, resp.StatusCode, data, classify)
		span.RecordError(callErr)
		span.SetStatus(codes.Error, string(apperr.KindOf(callErr)))
		c.logger.Info("backend rejected call", "op", op, "status", resp.StatusCode, "error", callErr)
		return callErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(apperr.Internal, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.Error{Kind: apperr.Timeout, Op: op, Message: "The request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &apperr.Error{Kind: apperr.Timeout, Op: op, Message: "The request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &apperr.Error{Kind: apperr.NetworkFailed, Op: op, Message: "The request was cancelled", Err: err}
	}
	return &apperr.Error{Kind: apperr.NetworkFailed, Op: op, Message: "Could not reach the server", Err: err}
}
