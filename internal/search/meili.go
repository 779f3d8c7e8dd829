package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxDirectory = "whisperr_directory"

// Meili implements Searcher via Meilisearch over the shared directory index.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the directory index.
// An unreachable server is tolerated; the health loop keeps retrying and the
// service falls back to Postgres meanwhile.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxDirectory,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxDirectory, err)
	}

	index := m.client.Index(idxDirectory)
	searchable := []string{"username", "displayName"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxDirectory, err)
	}
	filterable := []interface{}{"appsActive"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxDirectory, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchUsers queries the directory index.
func (m *Meili) SearchUsers(_ context.Context, query string, limit int) ([]UserSummary, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 10
	}

	resp, err := m.client.Index(idxDirectory).Search(query, &meili.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]UserSummary, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, summarize(
			decodeString(hit, "id"),
			decodeString(hit, "username"),
			decodeString(hit, "displayName"),
			decodeString(hit, "avatarUrl"),
			decodeString(hit, "profilePicId"),
			decodeStrings(hit, "appsActive"),
		))
	}
	return results, nil
}

// IndexIdentity adds or updates one identity in the directory index.
func (m *Meili) IndexIdentity(record DirectoryRecord) error {
	_, err := m.client.Index(idxDirectory).AddDocuments([]DirectoryRecord{record}, nil)
	return err
}

// IndexIdentities bulk-indexes identities, used for reindexing from Postgres.
func (m *Meili) IndexIdentities(records []DirectoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDirectory).AddDocuments(records, nil)
	return err
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeStrings(hit meili.Hit, key string) []string {
	raw, ok := hit[key]
	if !ok {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err == nil {
		return values
	}
	return nil
}
