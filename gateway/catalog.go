package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultCatalogTTL bounds how long a fetched model catalog is served
// without refreshing.
const DefaultCatalogTTL = 5 * time.Minute

// catalog is the process-wide model-catalog cache: one flat record,
// refresh-on-miss, single refresher at a time. The mutex guards only the
// snapshot fields, never the upstream fetch, so readers racing a refresh
// are served the previous snapshot instead of blocking on upstream I/O.
// The catalog is advisory data, not correctness-critical.
type catalog struct {
	client *Client
	ttl    time.Duration

	mu         sync.Mutex
	models     []ModelDescriptor
	fetchedAt  time.Time
	refreshing bool
}

func newCatalog(client *Client, ttl time.Duration) *catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &catalog{client: client, ttl: ttl}
}

// freeModels returns the cached free-model list, refreshing it when stale.
// While one caller refreshes, others holding a stale copy are served that
// copy immediately. A refresh failure with a usable stale copy serves the
// stale copy. Only a cold cache ever issues overlapping fetches.
func (c *catalog) freeModels(ctx context.Context) ([]ModelDescriptor, error) {
	c.mu.Lock()
	if c.models != nil && (time.Since(c.fetchedAt) < c.ttl || c.refreshing) {
		models := c.models
		c.mu.Unlock()
		return models, nil
	}
	c.refreshing = true
	stale := c.models
	staleAge := time.Since(c.fetchedAt)
	c.mu.Unlock()

	models, err := c.fetch(ctx)

	c.mu.Lock()
	c.refreshing = false
	if err != nil {
		c.mu.Unlock()
		if stale != nil {
			c.client.logger.Warn("Catalog refresh failed, serving stale copy",
				"age", staleAge, "error", err)
			return stale, nil
		}
		return nil, err
	}
	c.models = models
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	catalogRefreshes.Inc()
	return models, nil
}

// fetch retrieves /models and filters for free entries. The catalog payload
// is loosely typed upstream (pricing values are strings, fields come and
// go), so it is read with gjson rather than a rigid struct.
func (c *catalog) fetch(ctx context.Context) ([]ModelDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.client.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}

	resp, err := c.client.httpClient.Do(req)
	if err != nil {
		return nil, &networkError{err: fmt.Errorf("fetch model catalog: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &networkError{err: fmt.Errorf("read catalog body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newUpstreamError(resp.StatusCode, body)
	}

	var free []ModelDescriptor
	gjson.GetBytes(body, "data").ForEach(func(_, entry gjson.Result) bool {
		id := entry.Get("id").String()
		prompt := entry.Get("pricing.prompt").String()
		completion := entry.Get("pricing.completion").String()

		isFree := (prompt == "0" && completion == "0") || strings.Contains(id, ":free")
		if !isFree {
			return true
		}

		free = append(free, ModelDescriptor{
			ID:            id,
			Name:          entry.Get("name").String(),
			ContextLength: entry.Get("context_length").Int(),
			PromptPrice:   prompt,
			CompletePrice: completion,
		})
		return true
	})

	return free, nil
}
