package search

import (
	"context"
	"errors"
	"testing"

	"whisperrflow/sync/internal/store"
)

type fakeTier struct {
	results []UserSummary
	err     error
	healthy bool
	calls   int
}

func (f *fakeTier) SearchUsers(_ context.Context, query string, limit int) ([]UserSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeTier) Healthy() bool { return f.healthy }

func (f *fakeTier) IndexIdentity(DirectoryRecord) error { return nil }
func (f *fakeTier) IndexIdentities([]DirectoryRecord) error { return nil }

func TestSearchShortCircuitsShortQueries(t *testing.T) {
	primary := &fakeTier{healthy: true}
	fallback := &fakeTier{healthy: true}
	service := &Service{primary: primary, fallback: fallback}

	for _, query := range []string{"", "a"} {
		results := service.SearchUsers(context.Background(), query, 10)
		if len(results) != 0 {
			t.Errorf("query %q: expected empty results, got %d", query, len(results))
		}
	}
	if primary.calls != 0 || fallback.calls != 0 {
		t.Errorf("expected zero backend calls, got primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestSearchIssuesOneQueryForValidInput(t *testing.T) {
	primary := &fakeTier{healthy: true, results: []UserSummary{{ID: "u1", Title: "Ada"}}}
	service := &Service{primary: primary}

	results := service.SearchUsers(context.Background(), "al", 10)
	if primary.calls != 1 {
		t.Errorf("expected exactly one backend query, got %d", primary.calls)
	}
	if len(results) != 1 || results[0].ID != "u1" {
		t.Errorf("unexpected results %v", results)
	}
}

func TestSearchFallsBackWhenPrimaryErrors(t *testing.T) {
	primary := &fakeTier{healthy: true, err: errors.New("index gone")}
	fallback := &fakeTier{healthy: true, results: []UserSummary{{ID: "u2"}}}
	service := &Service{primary: primary, fallback: fallback}

	results := service.SearchUsers(context.Background(), "ada", 10)
	if fallback.calls != 1 {
		t.Errorf("expected fallback to be queried, got %d calls", fallback.calls)
	}
	if len(results) != 1 || results[0].ID != "u2" {
		t.Errorf("unexpected results %v", results)
	}
}

func TestSearchSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakeTier{healthy: false}
	fallback := &fakeTier{healthy: true, results: []UserSummary{{ID: "u3"}}}
	service := &Service{primary: primary, fallback: fallback}

	service.SearchUsers(context.Background(), "ada", 10)
	if primary.calls != 0 {
		t.Errorf("expected unhealthy primary to be skipped, got %d calls", primary.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("expected fallback query, got %d calls", fallback.calls)
	}
}

func TestSearchFailsOpen(t *testing.T) {
	fallback := &fakeTier{healthy: true, err: errors.New("db down")}
	service := &Service{fallback: fallback}

	results := service.SearchUsers(context.Background(), "ada", 10)
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil results on total failure, got %v", results)
	}
}

func TestSummarizeTitleFallsBackToUsername(t *testing.T) {
	summary := summarize("u1", "ada", "", "https://cdn/a.png", "pic-1", nil)
	if summary.Title != "ada" {
		t.Errorf("expected title to fall back to username, got %q", summary.Title)
	}
	if summary.Subtitle != "@ada" {
		t.Errorf("expected subtitle @ada, got %q", summary.Subtitle)
	}
	if summary.Apps == nil {
		t.Error("expected apps to be non-nil")
	}
}

type fakeLister struct {
	identities []store.GlobalIdentity
	err        error
}

func (f *fakeLister) ListIdentities(context.Context, string, int) ([]store.GlobalIdentity, error) {
	return f.identities, f.err
}

func TestPgDirectoryMapsIdentities(t *testing.T) {
	lister := &fakeLister{identities: []store.GlobalIdentity{{
		ID:          "u1",
		Username:    "ada",
		DisplayName: "Ada Lovelace",
		AvatarURL:   "https://cdn/a.png",
		AppsActive:  []string{"note", "flow"},
	}}}
	pg := NewPgDirectory(lister)

	results, err := pg.SearchUsers(context.Background(), "ada", 10)
	if err != nil {
		t.Fatalf("SearchUsers failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Title != "Ada Lovelace" || results[0].Subtitle != "@ada" {
		t.Errorf("unexpected mapping %+v", results[0])
	}
	if len(results[0].Apps) != 2 {
		t.Errorf("expected apps carried through, got %v", results[0].Apps)
	}
}
