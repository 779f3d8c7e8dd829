package search

import (
	"context"
	"log"

	"whisperrflow/sync/internal/store"
)

const minQueryLength = 2

// primarySearcher is the full-text tier: searchable and indexable.
type primarySearcher interface {
	Searcher
	IndexIdentity(record DirectoryRecord) error
	IndexIdentities(records []DirectoryRecord) error
}

// Service is the facade that tries Meilisearch first and falls back to the
// Postgres directory. Search failures never reach the caller; a broken
// directory search must not crash pickers living in the UI.
type Service struct {
	primary  primarySearcher
	fallback Searcher
}

// NewService creates a directory search service. meili may be nil if
// Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	service := &Service{fallback: fallback}
	if meili != nil {
		service.primary = meili
	}
	return service
}

// SearchUsers looks up ecosystem users matching query. Queries shorter than
// two characters return empty without touching any backend, keeping noisy
// partial input cheap.
func (s *Service) SearchUsers(ctx context.Context, query string, limit int) []UserSummary {
	if len(query) < minQueryLength {
		return []UserSummary{}
	}
	if limit <= 0 {
		limit = 10
	}

	if s.primary != nil && s.primary.Healthy() {
		results, err := s.primary.SearchUsers(ctx, query, limit)
		if err == nil {
			return nonNil(results)
		}
		log.Printf("search: primary tier error, falling back to postgres: %v", err)
	}

	if s.fallback == nil {
		return []UserSummary{}
	}
	results, err := s.fallback.SearchUsers(ctx, query, limit)
	if err != nil {
		log.Printf("search: directory fallback error: %v", err)
		return []UserSummary{}
	}
	return nonNil(results)
}

// IndexIdentity pushes a reconciled profile into the search index
// (fire-and-forget to the primary tier).
func (s *Service) IndexIdentity(identity store.GlobalIdentity) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	record := recordFromIdentity(identity)
	go func() {
		if err := s.primary.IndexIdentity(record); err != nil {
			log.Printf("search: index identity %s: %v", record.ID, err)
		}
	}()
}

// ReindexAll reads every identity from Postgres and pushes it to the primary
// tier, called at bootstrap when the index may be cold.
func (s *Service) ReindexAll(ctx context.Context, dir identityLister) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	identities, err := dir.ListIdentities(ctx, "", 0)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]DirectoryRecord, 0, len(identities))
	for _, identity := range identities {
		records = append(records, recordFromIdentity(identity))
	}
	if err := s.primary.IndexIdentities(records); err != nil {
		log.Printf("search: reindex failed: %v", err)
	}
}

func recordFromIdentity(identity store.GlobalIdentity) DirectoryRecord {
	return DirectoryRecord{
		ID:           identity.ID,
		Username:     identity.Username,
		DisplayName:  identity.DisplayName,
		AvatarURL:    identity.AvatarURL,
		ProfilePicID: identity.ProfilePicID,
		AppsActive:   identity.AppsActive,
	}
}

func nonNil(results []UserSummary) []UserSummary {
	if results == nil {
		return []UserSummary{}
	}
	return results
}
