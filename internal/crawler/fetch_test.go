package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(source string) ControllerConfig {
	return ControllerConfig{
		Source:              source,
		HumanDelay:          DelayWindow{Min: time.Millisecond, Max: 2 * time.Millisecond},
		RecoveryDelay:       DelayWindow{Min: time.Millisecond, Max: 2 * time.Millisecond},
		MaxTransientRetries: 2,
		TransientBackoff:    time.Millisecond,
		MinInterval:         time.Millisecond,
	}
}

const blockPageBody = `<html><head><title>ERROR: The request could not be satisfied</title></head>
<body>403 ERROR - Request blocked. Generated by cloudfront</body></html>`

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>deal list</body></html>"))
	}))
	defer server.Close()

	c := NewController(fastConfig("test"), StaticFetcher{})
	body, outcome, err := c.Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, FetchSuccess, outcome)
	assert.Contains(t, string(body), "deal list")
	assert.False(t, c.Aborted())
}

func TestFetchBlockRecoversOnce(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Write([]byte(blockPageBody))
			return
		}
		w.Write([]byte("<html><body>back to normal</body></html>"))
	}))
	defer server.Close()

	c := NewController(fastConfig("test"), StaticFetcher{})
	body, outcome, err := c.Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, FetchSuccess, outcome)
	assert.Contains(t, string(body), "back to normal")
	assert.False(t, c.Aborted(), "a successful recovery clears the blocked state")
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchPersistentBlockAborts(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(blockPageBody))
	}))
	defer server.Close()

	c := NewController(fastConfig("test"), StaticFetcher{})
	_, outcome, err := c.Fetch(context.Background(), server.URL)

	assert.Equal(t, FetchBlocked, outcome)
	assert.Error(t, err)
	assert.True(t, c.Aborted(), "failed recovery leaves the session blocked")
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "exactly one recovery attempt per block")
}

func TestFetchWhileBlockedSkipsRecovery(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(blockPageBody))
	}))
	defer server.Close()

	c := NewController(fastConfig("test"), StaticFetcher{})
	_, outcome, _ := c.Fetch(context.Background(), server.URL)
	require.Equal(t, FetchBlocked, outcome)
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))

	// The recovery attempt is spent; further fetches against a blocked
	// session fail fast with a single request
	_, outcome, err := c.Fetch(context.Background(), server.URL)
	assert.Equal(t, FetchBlocked, outcome)
	assert.Error(t, err)
	assert.True(t, c.Aborted())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchLaterSuccessClearsBlock(t *testing.T) {
	blocked := int32(1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&blocked) == 1 {
			w.Write([]byte(blockPageBody))
			return
		}
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	c := NewController(fastConfig("test"), StaticFetcher{})
	_, outcome, _ := c.Fetch(context.Background(), server.URL)
	require.Equal(t, FetchBlocked, outcome)
	require.True(t, c.Aborted())

	atomic.StoreInt32(&blocked, 0)
	_, outcome, err := c.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, FetchSuccess, outcome)
	assert.False(t, c.Aborted())
}

func TestFetchTransientRetriesThenSucceeds(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html><body>finally</body></html>"))
	}))
	defer server.Close()

	c := NewController(fastConfig("test"), StaticFetcher{})
	body, outcome, err := c.Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, FetchSuccess, outcome)
	assert.Contains(t, string(body), "finally")
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchTransientExhausted(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewController(fastConfig("test"), StaticFetcher{})
	_, outcome, err := c.Fetch(context.Background(), server.URL)

	assert.Equal(t, FetchTransient, outcome)
	assert.Error(t, err)
	// initial attempt plus MaxTransientRetries
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchClientErrorIsFatal(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewController(fastConfig("test"), StaticFetcher{})
	_, outcome, err := c.Fetch(context.Background(), server.URL)

	assert.Equal(t, FetchFatal, outcome)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "4xx is never retried")
}

func TestIsBlockPage(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		status  int
		blocked bool
	}{
		{"403 status", "<html></html>", 403, true},
		{"cloudfront phrase", "<html>Generated by cloudfront</html>", 200, true},
		{"request could not be satisfied", "<html>The Request Could Not Be Satisfied</html>", 200, true},
		{"access denied", "<html>ACCESS DENIED</html>", 200, true},
		{"error title", "<html><head><title>Site Error</title></head></html>", 200, true},
		{"blocked title", "<html><head><title>You have been Blocked</title></head></html>", 200, true},
		{"normal page", "<html><head><title>案件一覧</title></head><body>売上高 1億円</body></html>", 200, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.blocked, IsBlockPage([]byte(tc.body), tc.status))
		})
	}
}
