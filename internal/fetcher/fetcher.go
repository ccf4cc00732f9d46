// Package fetcher downloads source documents and listings.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultUserAgent is sent with every HTTP request.
	DefaultUserAgent = "Surge-Ruleset-Go/1.0"
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxBytes caps a response body.
	DefaultMaxBytes = 64 << 20
)

// ErrTooLarge is returned when a document exceeds the configured size cap.
var ErrTooLarge = errors.New("document exceeds size limit")

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// Fetcher retrieves documents over HTTP(S) or from the local filesystem.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewFetcher creates a new Fetcher
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
	}
}

// Fetch returns the raw content at location. http and https URLs are
// downloaded; file URLs and plain paths are read from disk.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if path, ok := localPath(location); ok {
		return f.readFile(path)
	}
	return f.download(ctx, location)
}

func (f *Fetcher) download(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: location, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := f.readAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := f.readAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// localPath reports whether location refers to the filesystem.
func localPath(location string) (string, bool) {
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return "", false
		}
		return u.Path, true
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return "", false
	}
	return location, !strings.Contains(location, "://")
}
