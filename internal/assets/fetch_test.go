package assets

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewindBuffer is a bytes.Buffer that supports restarting a transfer.
type rewindBuffer struct {
	bytes.Buffer
	rewinds int
}

func (b *rewindBuffer) Rewind() error {
	b.Reset()
	b.rewinds++
	return nil
}

func testFetcher() *HTTPFetcher {
	f := NewHTTPFetcher()
	f.RetryDelay = time.Millisecond
	f.Logger = quietLogger()
	return f
}

func TestHTTPFetcherOK(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte("network"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := testFetcher().Fetch(context.Background(), srv.URL, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "network", buf.String())
	assert.Equal(t, defaultUserAgent, ua)
}

func TestHTTPFetcherNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL, &bytes.Buffer{})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := testFetcher().Fetch(context.Background(), srv.URL, &buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", buf.String())
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := testFetcher()
	f.MaxRetries = 2
	_, err := f.Fetch(context.Background(), srv.URL, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestHTTPFetcherRestartsPartialTransfer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// promise more than is sent so the client sees an unexpected EOF
			w.Header().Set("Content-Length", strconv.Itoa(100))
			w.Write([]byte("trunc"))
			return
		}
		w.Write([]byte("complete"))
	}))
	defer srv.Close()

	buf := &rewindBuffer{}
	n, err := testFetcher().Fetch(context.Background(), srv.URL, buf)
	require.NoError(t, err)
	assert.Equal(t, "complete", buf.String())
	assert.Equal(t, int64(8), n)
	assert.Equal(t, 1, buf.rewinds)
}

func TestHTTPFetcherPartialWithoutRewinder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(100))
		w.Write([]byte("trunc"))
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testFetcher().Fetch(ctx, srv.URL, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestHTTPFetcherReportsSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	var last Progress
	p := New(dir,
		WithFetcher(testFetcher()),
		WithLogger(quietLogger()),
		WithPublisher(nil),
		WithProgress(func(pr Progress) { last = pr }),
	)
	report := p.Ensure(context.Background(), Manifest{{Name: "ten.bin", URL: srv.URL}})

	require.True(t, report.Complete(), report.Warnings)
	assert.Equal(t, int64(10), last.TotalBytes)
	assert.Equal(t, int64(10), last.BytesReceived)
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&StatusError{Code: 503}).Temporary())
	assert.True(t, (&StatusError{Code: 429}).Temporary())
	assert.False(t, (&StatusError{Code: 403}).Temporary())
}
