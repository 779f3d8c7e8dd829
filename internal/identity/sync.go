// Package identity reconciles the app-local user with the shared ecosystem
// directory, so every sibling app sees one global profile per person.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"whisperrflow/sync/internal/perm"
	"whisperrflow/sync/internal/store"
	"whisperrflow/sync/internal/synccache"
)

// User is the app-local current user as handed to the synchronizer. Prefs
// carries optional profile hints ("username", "avatarUrl").
type User struct {
	ID    string
	Name  string
	Prefs map[string]string
}

// Directory is the slice of the identity store the synchronizer needs.
type Directory interface {
	GetIdentity(ctx context.Context, id string) (store.GlobalIdentity, error)
	CreateIdentity(ctx context.Context, identity store.GlobalIdentity) error
	AddActiveApp(ctx context.Context, id, app string) error
}

// Indexer receives reconciled profiles for search indexing. May be nil.
type Indexer interface {
	IndexIdentity(identity store.GlobalIdentity)
}

type Synchronizer struct {
	dir     Directory
	cache   *synccache.Cache
	indexer Indexer
	appName string
	now     func() time.Time
}

func NewSynchronizer(dir Directory, cache *synccache.Cache, indexer Indexer, appName string) *Synchronizer {
	return &Synchronizer{
		dir:     dir,
		cache:   cache,
		indexer: indexer,
		appName: appName,
		now:     time.Now,
	}
}

// EnsureGlobalIdentity makes sure user has a directory row tagged active for
// this app: fetch, create if missing, append the app name if absent, then
// mark the sync cache. Safe to call redundantly; calling it any number of
// times for the same user converges to one row listing this app once.
//
// The error is returned for the boundary to log; identity sync is best
// effort and must never block the host app's primary flow.
func (s *Synchronizer) EnsureGlobalIdentity(ctx context.Context, user User, force bool) error {
	if user.ID == "" {
		return nil
	}
	if !s.cache.ShouldSync(ctx, user.ID, force) {
		return nil
	}

	profile, err := s.dir.GetIdentity(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		profile, err = s.createProfile(ctx, user)
	}
	if err != nil {
		return err
	}

	if !profile.HasApp(s.appName) {
		// Rows from before the permission scheme carry no rules and stay
		// writable; rules present on the row must grant the owner update.
		if len(profile.Permissions) > 0 && !perm.Can(profile.Permissions, user.ID, perm.ActionUpdate) {
			return fmt.Errorf("profile %s denies update to its owner", user.ID)
		}
		if err := s.dir.AddActiveApp(ctx, user.ID, s.appName); err != nil {
			return err
		}
		profile.AppsActive = append(profile.AppsActive, s.appName)
		profile.UpdatedAt = s.now()
	}

	if s.indexer != nil {
		s.indexer.IndexIdentity(profile)
	}

	if err := s.cache.MarkSynced(ctx, user.ID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// createProfile bootstraps a new directory row for a first-time user. A lost
// creation race (another app created the row first) falls through to a fresh
// fetch, so both racers converge on the same profile.
func (s *Synchronizer) createProfile(ctx context.Context, user User) (store.GlobalIdentity, error) {
	username := user.Prefs["username"]
	if username == "" {
		username = "user" + shortID(user.ID)
	}
	// The directory stores usernames lower-cased; canonicalize here so the
	// profile handed to the indexer matches the stored row.
	username = strings.ToLower(username)
	displayName := user.Name
	if displayName == "" {
		displayName = username
	}

	privacy, _ := json.Marshal(map[string]bool{"public": true})
	now := s.now()
	profile := store.GlobalIdentity{
		ID:              user.ID,
		Username:        username,
		DisplayName:     displayName,
		AppsActive:      []string{s.appName},
		Bio:             "",
		AvatarURL:       user.Prefs["avatarUrl"],
		PrivacySettings: string(privacy),
		Permissions:     perm.ProfileDefaults(user.ID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.dir.CreateIdentity(ctx, profile)
	if errors.Is(err, store.ErrConflict) {
		return s.dir.GetIdentity(ctx, user.ID)
	}
	if err != nil {
		return store.GlobalIdentity{}, err
	}
	return profile, nil
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
