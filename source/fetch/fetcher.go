package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/c360studio/semdiff/source"
	"github.com/c360studio/semdiff/source/parser"
)

const maxRedirects = 5

// Result contains the raw response of a fetch.
type Result struct {
	Body         []byte
	ContentType  string
	ETag         string
	LastModified time.Time
	StatusCode   int
}

// NotModified reports whether a conditional fetch found no change.
func (r *Result) NotModified() bool {
	return r.StatusCode == http.StatusNotModified
}

// Fetcher fetches remote documents with security checks.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	maxContentSize int64
	registry       *parser.Registry
	logger         *slog.Logger

	// validate vets every URL before a request is made.
	validate func(string) error
}

// NewFetcher creates a new document fetcher. A nil logger uses slog.Default().
func NewFetcher(timeout time.Duration, userAgent string, maxContentSize int64, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	// Resolved addresses are checked again so DNS rebinding cannot reach
	// a private address that passed hostname validation.
	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}

		for _, ipAddr := range ips {
			if IsPrivateIP(ipAddr.IP) {
				return nil, fmt.Errorf("%w: connection to private IP %s is not allowed", ErrBlockedURL, ipAddr.IP)
			}
		}

		var lastErr error
		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("failed to connect to any resolved IP: %w", lastErr)
	}

	transport := &http.Transport{
		DialContext:           safeDialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	f := &Fetcher{
		userAgent:      userAgent,
		maxContentSize: maxContentSize,
		registry:       parser.DefaultRegistry,
		logger:         logger,
		validate:       ValidateURL,
	}
	f.client = &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			if err := f.validate(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
	return f
}

// Fetch retrieves content from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	return f.FetchWithETag(ctx, urlStr, "")
}

// FetchWithETag retrieves content with conditional fetch support.
// If etag is provided, a 304 Not Modified result carries no body.
func (f *Fetcher) FetchWithETag(ctx context.Context, urlStr string, etag string) (*Result, error) {
	if err := f.validate(urlStr); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/markdown,text/plain,application/pdf,*/*;q=0.8")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	result := &Result{
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
		StatusCode:  resp.StatusCode,
	}

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			result.LastModified = t
		}
	}

	if resp.StatusCode == http.StatusNotModified {
		return result, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if int64(len(body)) > f.maxContentSize {
		return nil, fmt.Errorf("content too large (exceeds %d bytes)", f.maxContentSize)
	}

	result.Body = body
	return result, nil
}

// Load fetches a URL and parses it by its content type.
func (f *Fetcher) Load(ctx context.Context, urlStr string) (*source.Document, error) {
	start := time.Now()
	result, err := f.Fetch(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	doc, err := f.registry.ParseMimeType(FilenameFromURL(urlStr), result.ContentType, result.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", urlStr, err)
	}
	doc.Location = urlStr

	f.logger.Debug("Fetched document",
		slog.String("url", urlStr),
		slog.String("content_type", result.ContentType),
		slog.Int("bytes", len(result.Body)),
		slog.Duration("elapsed", time.Since(start)))
	return doc, nil
}
