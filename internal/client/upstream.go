// Package client provides the outbound HTTP client used to reach proxy targets.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"relay-proxy-go/internal/config"
	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/model"
)

// UpstreamClient sends fully buffered requests to proxy targets.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and an
// instrumented transport. The metrics parameter is optional; pass nil to
// disable upstream metrics recording.
//
// The client has no overall timeout: each route bounds its own calls through
// the request context.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(cfg.Upstream.DialTimeoutSeconds) * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return NewUpstreamClientWithTransport(otelhttp.NewTransport(transport), logger, m)
}

// NewUpstreamClientWithTransport wraps an arbitrary RoundTripper, e.g. a
// recorder in tests.
func NewUpstreamClientWithTransport(rt http.RoundTripper, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: rt,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Send executes out and returns the response with its body read to the end.
// The context bounds the whole exchange including the body read.
func (c *UpstreamClient) Send(ctx context.Context, out *model.OutboundRequest) (*model.OutboundResponse, error) {
	if out.URL == nil {
		return nil, fmt.Errorf("build upstream request: missing URL")
	}

	var body io.Reader = http.NoBody
	if out.Body != nil {
		body = bytes.NewReader(out.Body)
	}
	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if out.Header != nil {
		req.Header = out.Header.Clone()
	}
	if out.Host != "" {
		req.Host = out.Host
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	method := metrics.NormalizeMethod(req.Method)
	if err != nil {
		c.observe(method, start, 0)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	c.observe(method, start, resp.StatusCode)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	return &model.OutboundResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *UpstreamClient) observe(method string, start time.Time, status int) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if status != 0 {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}
