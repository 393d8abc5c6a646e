package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatpro/internal/models"
	"chatpro/internal/transport"

	"github.com/c-pro/geche"
)

// Directory wraps user search queries used to start new conversations.
type Directory struct {
	client *transport.Client
	cache  geche.Geche[string, []models.UserIdentity]
	log    *slog.Logger
}

// New creates a Directory. The cache context bounds the lifetime of the
// TTL cache's cleanup goroutine.
func New(ctx context.Context, client *transport.Client, cacheTTL time.Duration) *Directory {
	if cacheTTL <= 0 {
		cacheTTL = 3 * time.Second
	}
	return &Directory{
		client: client,
		cache:  geche.NewMapTTLCache[string, []models.UserIdentity](ctx, cacheTTL, time.Second),
		log:    slog.Default().With("component", "directory"),
	}
}

// Search returns users matching query. An empty or whitespace-only query
// short-circuits to an empty result without a network call. A failed
// lookup degrades to an empty result with the error surfaced for display.
func (d *Directory) Search(ctx context.Context, requesterID int64, query string) ([]models.UserIdentity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := fmt.Sprintf("%d:%s", requesterID, query)
	if cached, err := d.cache.Get(key); err == nil {
		return cached, nil
	}

	raw, err := d.client.Call(ctx, http.MethodGet,
		"/users/search?query="+url.QueryEscape(query), nil,
		&transport.Identity{UserID: requesterID})
	if err != nil {
		d.log.Warn("user search failed", "query", query, "error", err)
		return []models.UserIdentity{}, err
	}

	var results []models.UserIdentity
	if err := json.Unmarshal(raw, &results); err != nil {
		d.log.Warn("user search returned malformed body", "query", query, "error", err)
		return []models.UserIdentity{}, fmt.Errorf("failed to decode search results: %w", err)
	}

	d.cache.Set(key, results)

	return results, nil
}
