package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type GetOptions struct {
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration
}

// HeadResult carries the change-detection headers of an upstream
// schedule archive.
type HeadResult struct {
	ETag         string
	LastModified time.Time
}

// A thing capable of downloading a file, optionally with caching, and
// of probing upstream change-detection headers without a download.
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
	Head(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (HeadResult, error)
}

// Gets a file. Doesn't cache. Provided as convenience for
// implementing custom Downloaders.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if options.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(options.MaxSize))
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return body, nil
}

// Probes a URL with a HEAD request and returns its ETag and
// Last-Modified headers. Either may be absent upstream, in which case
// the corresponding field is left zero.
func HTTPHead(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (HeadResult, error) {
	client := &http.Client{
		Timeout: timeout,
	}

	req, err := http.NewRequestWithContext(ctx, "HEAD", url, nil)
	if err != nil {
		return HeadResult{}, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return HeadResult{}, fmt.Errorf("making request: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HeadResult{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	result := HeadResult{
		ETag: resp.Header.Get("ETag"),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		t, err := http.ParseTime(lm)
		if err == nil {
			result.LastModified = t
		}
	}

	return result, nil
}
