package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults for HTTPFetcher.
const (
	DefaultTimeout    = 5 * time.Minute
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
	defaultUserAgent  = "nnue-interface"
)

// Fetcher retrieves the bytes behind a source locator.
type Fetcher interface {
	// Fetch writes the content of url to w and returns the number of bytes
	// written.
	Fetch(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Rewinder is implemented by writers that can discard what was written so a
// failed transfer can be restarted from the beginning.
type Rewinder interface {
	Rewind() error
}

// SizeReceiver is implemented by writers that want the expected content length.
type SizeReceiver interface {
	ExpectSize(n int64)
}

// StatusError is returned for a non-200 HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// HTTPFetcher downloads assets over HTTP with a bounded timeout and retry budget.
type HTTPFetcher struct {
	Client     *http.Client
	MaxRetries uint64
	RetryDelay time.Duration
	UserAgent  string
	Logger     *slog.Logger
}

// NewHTTPFetcher creates a fetcher with default settings.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:     &http.Client{Timeout: DefaultTimeout},
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		UserAgent:  defaultUserAgent,
	}
}

// Fetch implements Fetcher. Transport errors, 5xx, 408 and 429 responses are
// retried; other statuses fail immediately. A transfer that already wrote
// bytes is only retried if w implements Rewinder.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.RetryDelay
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryDelay
	}
	policy.MaxElapsedTime = 0 // bounded by retry count instead

	var written int64
	attempt := 0
	op := func() error {
		attempt++
		if written > 0 {
			rw, ok := w.(Rewinder)
			if !ok {
				return backoff.Permanent(errors.New("partial transfer cannot be restarted"))
			}
			if err := rw.Rewind(); err != nil {
				return backoff.Permanent(err)
			}
			written = 0
		}

		n, err := f.fetchOnce(ctx, client, url, w)
		written = n
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		logger.Info("Retrying download", "url", url, "attempt", attempt+1, "delay", delay, "last_error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, f.MaxRetries), ctx), notify)
	return written, err
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, client *http.Client, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	if sr, ok := w.(SizeReceiver); ok {
		sr.ExpectSize(resp.ContentLength)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download error: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("download error: got %d of %d bytes", n, resp.ContentLength)
	}
	return n, nil
}
