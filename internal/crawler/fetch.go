package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"search-crawler/internal/metrics"
)

// Fetcher downloads one page body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetchError is a failed page download: a network error or a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int // 0 for network errors
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could plausibly succeed.
func (e *FetchError) Retryable() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// HTTPFetcher implements Fetcher with a shared http.Client.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewHTTPFetcher(userAgent string, timeout time.Duration, maxBodyBytes int64) *HTTPFetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &HTTPFetcher{
		client:       &http.Client{Timeout: timeout, Transport: transport},
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger used for per-fetch diagnostics.
func (f *HTTPFetcher) WithLogger(l *slog.Logger) *HTTPFetcher {
	if l != nil {
		f.logger = l
	}
	return f
}

// Client exposes the underlying client so the robots checker can share it.
func (f *HTTPFetcher) Client() *http.Client { return f.client }

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	// One byte past the cap tells a truncated body from one that fits.
	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if int64(len(b)) > f.maxBodyBytes {
		b = b[:f.maxBodyBytes]
		metrics.BodiesTruncated.Inc()
		f.logger.Debug("body truncated", "url", rawURL, "limit_bytes", f.maxBodyBytes)
	}
	return b, nil
}
