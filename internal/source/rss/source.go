package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"

	"feed_updater/internal/domain"
)

const defaultMaxBodyBytes = 10 * 1024 * 1024

// Config holds transport configuration.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxBodyBytes caps the document size. Zero means 10 MiB.
	MaxBodyBytes   int64
}

// Source fetches syndication documents over HTTP with conditional requests.
type Source struct {
	httpClient     *http.Client
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxBodyBytes   int64
	logger         *slog.Logger
}

// New creates a new RSS/Atom transport. cfg.Timeout bounds every single
// request, which is the only bound on a wedged fetch.
func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:      cfg.UserAgent,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		maxBodyBytes:   cfg.MaxBodyBytes,
		logger:         logger.With("component", "rss"),
	}
}

// Fetch issues a conditional GET for url. A 304 answer is returned as a
// result with NotModified set, never as an error.
func (s *Source) Fetch(ctx context.Context, url string, etag, modified *string) (*domain.FetchResult, error) {
	var result *domain.FetchResult

	operation := func() error {
		res, err := s.doRequest(ctx, url, etag, modified)
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("request failed, retrying",
			"url", url,
			"backoff", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, s.policy(ctx), notify); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	return result, nil
}

func (s *Source) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxInterval = s.maxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxAttempts-1)), ctx)
}

func (s *Source) doRequest(ctx context.Context, url string, etag, modified *string) (*domain.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("User-Agent", s.userAgent)
	if etag != nil && *etag != "" {
		req.Header.Set("If-None-Match", *etag)
	}
	if modified != nil && *modified != "" {
		req.Header.Set("If-Modified-Since", *modified)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &domain.FetchResult{NotModified: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > s.maxBodyBytes {
		return nil, backoff.Permanent(fmt.Errorf("document too large: over %d bytes", s.maxBodyBytes))
	}

	parser := gofeed.NewParser()
	feed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse document: %w", err))
	}

	return &domain.FetchResult{
		Document: toDocument(feed),
		ETag:     headerValue(resp.Header, "ETag"),
		Modified: headerValue(resp.Header, "Last-Modified"),
	}, nil
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func headerValue(h http.Header, key string) *string {
	v := h.Get(key)
	if v == "" {
		return nil
	}
	return &v
}
