package gateway

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

const catalogBody = `{
	"data": [
		{"id": "openai/gpt-4o", "name": "GPT-4o", "context_length": 128000,
		 "pricing": {"prompt": "0.0000025", "completion": "0.00001"}},
		{"id": "google/gemma-3-27b-it:free", "name": "Gemma 3 27B (free)", "context_length": 96000,
		 "pricing": {"prompt": "0", "completion": "0"}},
		{"id": "vendor/cheap-model", "name": "Cheap", "context_length": 8192,
		 "pricing": {"prompt": "0", "completion": "0"}},
		{"id": "vendor/odd:free", "name": "Odd Free", "context_length": 4096,
		 "pricing": {"prompt": "0.001", "completion": "0"}}
	]
}`

func TestFreeModelsFiltering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "k"})
	models, err := client.FreeModels(context.Background())
	require.NoError(t, err)

	// Zero pricing or a ":free" suffix qualifies; paid entries do not.
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{
		"google/gemma-3-27b-it:free",
		"vendor/cheap-model",
		"vendor/odd:free",
	}, ids)

	assert.Equal(t, "Gemma 3 27B (free)", models[0].Name)
	assert.Equal(t, int64(96000), models[0].ContextLength)
	assert.Equal(t, "0", models[0].PromptPrice)
}

func TestFreeModelsCachesWithinTTL(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "k", CatalogTTL: time.Hour})
	for i := 0; i < 5; i++ {
		_, err := client.FreeModels(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), hits.Load())
}

func TestFreeModelsRefreshesAfterTTL(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "k", CatalogTTL: 10 * time.Millisecond})

	_, err := client.FreeModels(context.Background())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = client.FreeModels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Load())
}

func TestFreeModelsServesStaleOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "k", CatalogTTL: 10 * time.Millisecond})

	first, err := client.FreeModels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	fail.Store(true)
	time.Sleep(20 * time.Millisecond)

	stale, err := client.FreeModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, stale)
}

func TestFreeModelsStaleServedWhileRefreshInFlight(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) > 1 {
			<-release // hold the refresh open
		}
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "k", CatalogTTL: 10 * time.Millisecond})

	first, err := client.FreeModels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	time.Sleep(20 * time.Millisecond) // expire the TTL

	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		_, _ = client.FreeModels(context.Background())
	}()

	// Wait for the refresher to reach the upstream call.
	require.Eventually(t, func() bool { return hits.Load() >= 2 }, time.Second, time.Millisecond)

	// A concurrent reader gets the stale snapshot immediately instead of
	// blocking behind the in-flight fetch.
	start := time.Now()
	stale, err := client.FreeModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, stale)
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	close(release)
	<-refreshDone
}

func TestFreeModelsColdFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := client.FreeModels(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
