// Package fetch performs single GET requests for manifests and segments.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"dash-player/internal/platform/metrics"

	"go.uber.org/ratelimit"
)

// Fetcher fetches one resource. Implementations must be safe for concurrent
// use by independent streams.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts ...Option) ([]byte, error)
}

// Option configures a single request.
type Option func(*request)

type request struct {
	byteRange string
}

// WithByteRange requests only the given byte range, e.g. "0-499" or "500-".
func WithByteRange(spec string) Option {
	return func(r *request) {
		r.byteRange = spec
	}
}

// Client is the HTTP Fetcher. It never retries.
type Client struct {
	http    *http.Client
	timeout time.Duration
	limiter ratelimit.Limiter
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Config holds Client settings. Zero values mean no per-request timeout and
// no rate limit.
type Config struct {
	Timeout   time.Duration
	RateLimit int // requests per second
}

// NewClient returns a Client. httpClient may be nil to use http.DefaultClient;
// m may be nil to disable metric recording.
func NewClient(httpClient *http.Client, cfg Config, log *slog.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimit > 0 {
		limiter = ratelimit.New(cfg.RateLimit, ratelimit.WithoutSlack)
	}
	return &Client{
		http:    httpClient,
		timeout: cfg.Timeout,
		limiter: limiter,
		log:     log,
		metrics: m,
	}
}

// Fetch issues GET url and returns the response body. Non-2xx statuses and
// transport failures are returned as *Error of KindNetwork, deadline overruns
// as KindTimeout. Cancellation of ctx by the caller is returned as ctx.Err().
func (c *Client) Fetch(ctx context.Context, url string, opts ...Option) ([]byte, error) {
	var req request
	for _, opt := range opts {
		opt(&req)
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	body, status, err := c.do(reqCtx, url, req)
	dur := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; not a fetch failure.
			return nil, ctx.Err()
		}
		ferr := &Error{Kind: KindNetwork, URL: url, Status: status, Err: err}
		result := metrics.ResultError
		if errors.Is(err, context.DeadlineExceeded) {
			ferr.Kind = KindTimeout
			result = metrics.ResultTimeout
		}
		c.metrics.ObserveFetch(result, 0)
		c.log.Warn("fetch failed",
			slog.String("url", url),
			slog.String("kind", string(ferr.Kind)),
			slog.Int("status", status),
			slog.String("error", err.Error()))
		return nil, ferr
	}

	c.metrics.ObserveFetch(metrics.ResultOK, len(body))
	c.log.Debug("fetched",
		slog.String("url", url),
		slog.Int("status", status),
		slog.Int("bytes", len(body)),
		slog.Int("duration_ms", int(dur.Milliseconds())))
	return body, nil
}

// wait blocks until the limiter admits a request or ctx is done. A slot
// taken after ctx is done is left unused.
func (c *Client) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	taken := make(chan struct{})
	go func() {
		c.limiter.Take()
		close(taken)
	}()
	select {
	case <-taken:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errStatus = errors.New("unexpected status")

func (c *Client) do(ctx context.Context, url string, req request) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if req.byteRange != "" {
		httpReq.Header.Set("Range", "bytes="+req.byteRange)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("%w %d", errStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
