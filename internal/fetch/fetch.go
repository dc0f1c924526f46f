// Package fetch opens catalog sources: local files, http(s) URLs, or stdin.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default limits. Steam catalog dumps run to a few hundred megabytes.
const (
	DefaultMaxFileBytes = 1 << 30   // 1GiB for local files and stdin
	DefaultMaxHTTPBytes = 512 << 20 // 512MiB for downloads
	DefaultTimeout      = 2 * time.Minute
)

const userAgent = "playnext/0.1"

// Options bounds what a Fetcher will read.
type Options struct {
	MaxFileBytes int64
	MaxHTTPBytes int64
	Timeout      time.Duration // whole-request timeout for URLs
}

// DefaultOptions returns the default limits.
func DefaultOptions() Options {
	return Options{
		MaxFileBytes: DefaultMaxFileBytes,
		MaxHTTPBytes: DefaultMaxHTTPBytes,
		Timeout:      DefaultTimeout,
	}
}

// Fetcher opens catalog sources. It is safe for concurrent use.
type Fetcher struct {
	opts   Options
	client *http.Client
}

// New returns a Fetcher; zero-valued options fall back to defaults.
func New(opts Options) *Fetcher {
	defaults := DefaultOptions()
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = defaults.MaxFileBytes
	}
	if opts.MaxHTTPBytes <= 0 {
		opts.MaxHTTPBytes = defaults.MaxHTTPBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}

	// connection phases get a fraction of the overall budget
	return &Fetcher{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: opts.Timeout / 6}).DialContext,
				TLSHandshakeTimeout:   opts.Timeout / 6,
				ResponseHeaderTimeout: opts.Timeout / 2,
				DisableKeepAlives:     true,
			},
		},
	}
}

var defaultFetcher = New(DefaultOptions())

// GetContent opens source with the default limits. See Fetcher.Open.
func GetContent(ctx context.Context, source string) (io.ReadCloser, error) {
	return defaultFetcher.Open(ctx, source)
}

// Open returns a size-limited reader for source:
//   - "-" reads standard input (closing the reader leaves stdin open)
//   - "http://" and "https://" sources are downloaded
//   - anything else is a local file path
func (f *Fetcher) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	switch {
	case source == "-":
		return &limitedReadCloser{
			ReadCloser: io.NopCloser(os.Stdin),
			remaining:  f.opts.MaxFileBytes,
			source:     "stdin",
		}, nil
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		return f.openURL(ctx, source)
	default:
		return f.openFile(source)
	}
}

func (f *Fetcher) openURL(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for URL %q: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %q: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request failed for URL %q: status %s", url, resp.Status)
	}

	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil && size > f.opts.MaxHTTPBytes {
			resp.Body.Close()
			return nil, fmt.Errorf("catalog at %q is too large (%d bytes > %d bytes limit)",
				url, size, f.opts.MaxHTTPBytes)
		}
	}

	// chunked responses carry no length, so the limit is enforced while reading
	return &limitedReadCloser{
		ReadCloser: resp.Body,
		remaining:  f.opts.MaxHTTPBytes,
		source:     url,
	}, nil
}

func (f *Fetcher) openFile(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("catalog file %q does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to access catalog file %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("catalog path %q is a directory", path)
	}
	if info.Size() > f.opts.MaxFileBytes {
		return nil, fmt.Errorf("catalog file %q is too large (%d bytes > %d bytes limit)",
			path, info.Size(), f.opts.MaxFileBytes)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file %q: %w", path, err)
	}
	return file, nil
}

// limitedReadCloser fails reads once more than remaining bytes were consumed.
type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	source    string
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// probe one byte so content of exactly the limit still reaches EOF
		var probe [1]byte
		n, err := l.ReadCloser.Read(probe[:])
		if n == 0 {
			return 0, err
		}
		return 0, fmt.Errorf("content from %q exceeds size limit", l.source)
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.ReadCloser.Read(p)
	l.remaining -= int64(n)
	return n, err
}
