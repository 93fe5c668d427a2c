package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kzfm923/madealworker/config"
	"kzfm923/madealworker/internal/pipeline"
	"kzfm923/madealworker/services/cache"
)

type stubStore struct {
	mu           sync.Mutex
	existing     map[string]struct{}
	appended     []pipeline.FormattedRecord
	failExisting bool
}

func (s *stubStore) ExistingIDs() (map[string]struct{}, error) {
	if s.failExisting {
		return nil, errors.New("store unreachable")
	}
	if s.existing == nil {
		return map[string]struct{}{}, nil
	}
	return s.existing, nil
}

func (s *stubStore) Append(records []pipeline.FormattedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, records...)
	return nil
}

func (s *stubStore) Close() error { return nil }

func fastAppConfig() *config.Config {
	return &config.Config{
		HumanDelayMin:      time.Millisecond,
		HumanDelayMax:      2 * time.Millisecond,
		RecoveryDelayMin:   time.Millisecond,
		RecoveryDelayMax:   2 * time.Millisecond,
		MinRequestInterval: time.Millisecond,
	}
}

func listSource(name, url string) config.SourceConfig {
	return config.SourceConfig{
		Name:         name,
		URL:          url,
		Enabled:      true,
		MaxPages:     1,
		ItemSelector: "div.deal",
		Fields: map[string]config.FieldConfig{
			"id":      {Selectors: []config.LocatorConfig{{Selector: ".no"}}},
			"title":   {Selectors: []config.LocatorConfig{{Selector: "h3"}}},
			"revenue": {Selectors: []config.LocatorConfig{{Selector: ".rev"}}},
			"link":    {Selectors: []config.LocatorConfig{{Selector: "a", Attr: "href"}}},
		},
	}
}

const dealsPage = `<html><body>
<div class="deal"><span class="no">A-1</span><h3>製造業</h3><span class="rev">5,000万円〜1億円</span><a href="/d/1">詳細</a></div>
<div class="deal"><span class="no">A-2</span><h3>小売業</h3><span class="rev">応相談</span><a href="/d/2">詳細</a></div>
</body></html>`

const blockPage = `<html><body>403 ERROR - Request blocked. Generated by cloudfront</body></html>`

func TestRunOncePersistsRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dealsPage))
	}))
	defer server.Close()

	st := &stubStore{}
	cd := cache.NewCooldown(cache.NewMemoryCache(), time.Minute)
	w := NewWorker(context.Background(), fastAppConfig(),
		[]config.SourceConfig{listSource("alpha", server.URL)}, st, cd)

	require.NoError(t, w.RunOnce())
	require.Len(t, st.appended, 2)
	assert.Equal(t, "50～100百万円", st.appended[0].Revenue)
	assert.Equal(t, "応相談", st.appended[1].Revenue)
	assert.Len(t, st.appended[0].UniqueID, 12)
}

func TestRunOnceSkipsKnownRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dealsPage))
	}))
	defer server.Close()

	knownID := pipeline.UniqueID("alpha", server.URL+"/d/1")
	st := &stubStore{existing: map[string]struct{}{knownID: {}}}
	cd := cache.NewCooldown(cache.NewMemoryCache(), time.Minute)
	w := NewWorker(context.Background(), fastAppConfig(),
		[]config.SourceConfig{listSource("alpha", server.URL)}, st, cd)

	require.NoError(t, w.RunOnce())
	require.Len(t, st.appended, 1, "the already-stored listing is not re-appended")
	assert.Equal(t, "小売業", st.appended[0].Title)
	assert.NotEqual(t, knownID, st.appended[0].UniqueID)
}

func TestRunOnceIsolatesBlockedSource(t *testing.T) {
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(blockPage))
	}))
	defer blocked.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dealsPage))
	}))
	defer healthy.Close()

	st := &stubStore{}
	cd := cache.NewCooldown(cache.NewMemoryCache(), time.Minute)
	w := NewWorker(context.Background(), fastAppConfig(), []config.SourceConfig{
		listSource("walled", blocked.URL),
		listSource("open", healthy.URL),
	}, st, cd)

	require.NoError(t, w.RunOnce())
	assert.Len(t, st.appended, 2, "the healthy source still produces its records")
	assert.True(t, cd.Active("walled"), "the blocked source goes into cooldown")
	assert.False(t, cd.Active("open"))
}

func TestRunOnceSkipsCooledSource(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(dealsPage))
	}))
	defer server.Close()

	st := &stubStore{}
	cd := cache.NewCooldown(cache.NewMemoryCache(), time.Minute)
	cd.Mark("alpha")

	w := NewWorker(context.Background(), fastAppConfig(),
		[]config.SourceConfig{listSource("alpha", server.URL)}, st, cd)

	require.NoError(t, w.RunOnce())
	assert.Zero(t, hits, "a cooling-off source is not fetched at all")
	assert.Empty(t, st.appended)
}

func TestRunOnceFailsFastWhenStoreUnreachable(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(dealsPage))
	}))
	defer server.Close()

	st := &stubStore{failExisting: true}
	cd := cache.NewCooldown(cache.NewMemoryCache(), time.Minute)
	w := NewWorker(context.Background(), fastAppConfig(),
		[]config.SourceConfig{listSource("alpha", server.URL)}, st, cd)

	assert.Error(t, w.RunOnce())
	assert.Zero(t, hits, "nothing is crawled when the destination is down")
}

func TestRunOnceAppliesThresholds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
<div class="deal"><span class="no">B-1</span><h3>大型</h3><span class="rev">9億円</span><a href="/d/1">x</a></div>
<div class="deal"><span class="no">B-2</span><h3>小型</h3><span class="rev">3,000万円</span><a href="/d/2">x</a></div>
</body></html>`))
	}))
	defer server.Close()

	src := listSource("alpha", server.URL)
	src.Thresholds = config.ThresholdConfig{MinRevenueMillion: 100}

	st := &stubStore{}
	cd := cache.NewCooldown(cache.NewMemoryCache(), time.Minute)
	w := NewWorker(context.Background(), fastAppConfig(), []config.SourceConfig{src}, st, cd)

	require.NoError(t, w.RunOnce())
	require.Len(t, st.appended, 1)
	assert.Equal(t, "大型", st.appended[0].Title)
}
