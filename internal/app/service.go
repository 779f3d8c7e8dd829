package app

import (
	"context"
	"log"

	"whisperrflow/sync/internal/config"
	"whisperrflow/sync/internal/identity"
	"whisperrflow/sync/internal/intent"
	"whisperrflow/sync/internal/realtime"
	"whisperrflow/sync/internal/search"
)

type identitySyncer interface {
	EnsureGlobalIdentity(ctx context.Context, user identity.User, force bool) error
}

type directorySearcher interface {
	SearchUsers(ctx context.Context, query string, limit int) []search.UserSummary
}

type changeFeed interface {
	Subscribe(tableID string, onEvent func(realtime.Event)) (func(), error)
	Publish(ctx context.Context, tableID string, eventType realtime.EventType, payload any) error
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// Service wires the sync layer together: identity reconciliation, directory
// search, intent dispatch, and the realtime feed.
type Service struct {
	cfg        config.Config
	db         pinger
	sync       identitySyncer
	search     directorySearcher
	feed       changeFeed
	dispatcher *intent.Dispatcher
}

func New(cfg config.Config, db pinger, sync identitySyncer, searcher directorySearcher, feed changeFeed, dispatcher *intent.Dispatcher) *Service {
	if dispatcher == nil {
		dispatcher = intent.NewDispatcher()
	}
	return &Service{
		cfg:        cfg,
		db:         db,
		sync:       sync,
		search:     searcher,
		feed:       feed,
		dispatcher: dispatcher,
	}
}

func (s *Service) SyncToken() string {
	return s.cfg.SyncToken
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// StartupSync is the boundary around identity reconciliation: failures are
// logged and swallowed so a broken directory never blocks the app's primary
// flow. Retrying happens opportunistically on the next natural trigger.
func (s *Service) StartupSync(ctx context.Context, user identity.User, force bool) {
	if s.sync == nil {
		return
	}
	if err := s.sync.EnsureGlobalIdentity(ctx, user, force); err != nil {
		log.Printf("identity: global identity sync failed: %v", err)
	}
}

// HandleLaunchURL inspects the URL the app was opened with and dispatches a
// decoded cross-app intent, at most once per launch.
func (s *Service) HandleLaunchURL(rawURL string) bool {
	return s.dispatcher.DispatchURL(rawURL)
}

// Dispatcher exposes the intent dispatcher so the host app can register its
// local effects once they are initialized.
func (s *Service) Dispatcher() *intent.Dispatcher {
	return s.dispatcher
}

// SearchDirectory runs an ecosystem user search. Always succeeds; failures
// degrade to empty results inside the search service.
func (s *Service) SearchDirectory(ctx context.Context, query string, limit int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.UserSummary{}, Query: query}
	}
	results := s.search.SearchUsers(ctx, query, limit)
	return search.Response{Results: results, Total: len(results), Query: query}
}

// SubscribeChanges opens a realtime subscription for one logical table.
func (s *Service) SubscribeChanges(tableID string, onEvent func(realtime.Event)) (func(), error) {
	return s.feed.Subscribe(tableID, onEvent)
}

// PublishChange announces a row mutation on the change feed.
func (s *Service) PublishChange(ctx context.Context, tableID string, eventType realtime.EventType, payload any) error {
	return s.feed.Publish(ctx, tableID, eventType, payload)
}
