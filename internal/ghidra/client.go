// Package ghidra is an HTTP client for the Ghidra plugin that renders
// disassembly and decompiled source for matched functions.
//
// The plugin exposes form-encoded POST endpoints under bsim/. Error
// responses are reported the way the plugin's own bridge formats them,
// "Error <status>: <body>", so operators see the plugin's text verbatim.
package ghidra

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// Defaults match the plugin's stock bridge
const (
	DefaultServerURL      = "http://127.0.0.1:8080/"
	DefaultRequestTimeout = 5 * time.Second

	maxResponseBytes = 16 << 20
)

// Plugin endpoints
const (
	endpointDisassembly = "bsim/get_match_disassembly"
	endpointDecompile   = "bsim/get_match_decompile"
)

// Config configures the plugin client
type Config struct {
	// ServerURL is the plugin base URL (default: http://127.0.0.1:8080/)
	ServerURL string

	// RequestTimeout bounds a request when the caller's context has no
	// deadline of its own (default: 5s)
	RequestTimeout time.Duration

	// RateLimit caps requests per second; zero means unlimited
	RateLimit float64

	// Retry controls retries of transport errors and 5xx responses
	Retry RetryConfig

	// HTTPClient overrides the default client
	HTTPClient *http.Client
}

// Client talks to the Ghidra plugin. It implements resolver.Disassembler and
// resolver.Decompiler.
type Client struct {
	base    *url.URL
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a plugin client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	base, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid plugin URL %q: %w", cfg.ServerURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid plugin URL %q: scheme must be http or https", cfg.ServerURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	return &Client{
		base:    base,
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		logger:  logging.OrNoop(logger),
	}, nil
}

// Disassemble fetches disassembly for ref
func (c *Client) Disassemble(ctx context.Context, ref types.MatchRef) (string, error) {
	return c.post(ctx, endpointDisassembly, matchForm(ref))
}

// Decompile fetches decompiled source for ref
func (c *Client) Decompile(ctx context.Context, ref types.MatchRef) (string, error) {
	return c.post(ctx, endpointDecompile, matchForm(ref))
}

func matchForm(ref types.MatchRef) url.Values {
	return url.Values{
		"executable_path":  {ref.ExecutablePath},
		"function_name":    {ref.FunctionName},
		"function_address": {ref.FunctionAddress},
	}
}

// post sends a form request with rate limiting and retries
func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	target := c.base.ResolveReference(&url.URL{Path: endpoint}).String()

	text, err := retryWithBackoff(ctx, c.cfg.Retry, func() (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return c.do(ctx, target, form)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", types.Wrap(types.ErrResolutionFailed, err)
	}
	return text, nil
}

// do performs one request. 4xx responses are permanent; 5xx and transport
// errors are retried.
func (c *Client) do(ctx context.Context, target string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", permanent(fmt.Errorf("Request failed: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("Request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("Request failed: reading response: %w", err)
	}
	text := strings.TrimRight(string(body), "\r\n")

	c.logger.Debug("plugin request",
		"url", target,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("Error %d: %s", resp.StatusCode, text)
		if resp.StatusCode >= 500 {
			return "", err
		}
		return "", permanent(err)
	}
	return text, nil
}
