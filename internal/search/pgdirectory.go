package search

import (
	"context"

	"whisperrflow/sync/internal/store"
)

// identityLister is the store slice the fallback tier needs.
type identityLister interface {
	ListIdentities(ctx context.Context, query string, limit int) ([]store.GlobalIdentity, error)
}

// PgDirectory implements Searcher directly against the Postgres directory
// table, used when Meilisearch is down or not configured.
type PgDirectory struct {
	dir identityLister
}

func NewPgDirectory(dir identityLister) *PgDirectory {
	return &PgDirectory{dir: dir}
}

// Healthy always returns true. If Postgres is down, the whole service is down.
func (p *PgDirectory) Healthy() bool {
	return true
}

// SearchUsers matches username by prefix or display name by full text, via
// the directory store.
func (p *PgDirectory) SearchUsers(ctx context.Context, query string, limit int) ([]UserSummary, error) {
	identities, err := p.dir.ListIdentities(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]UserSummary, 0, len(identities))
	for _, identity := range identities {
		results = append(results, summarize(
			identity.ID,
			identity.Username,
			identity.DisplayName,
			identity.AvatarURL,
			identity.ProfilePicID,
			identity.AppsActive,
		))
	}
	return results, nil
}
