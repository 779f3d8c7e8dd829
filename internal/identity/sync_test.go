package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"whisperrflow/sync/internal/store"
	"whisperrflow/sync/internal/synccache"
)

type fakeDirectory struct {
	rows map[string]store.GlobalIdentity

	getCalls    int
	createCalls int
	appendCalls int

	getErr    error
	createErr error
	appendErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{rows: map[string]store.GlobalIdentity{}}
}

func (f *fakeDirectory) GetIdentity(_ context.Context, id string) (store.GlobalIdentity, error) {
	f.getCalls++
	if f.getErr != nil {
		return store.GlobalIdentity{}, f.getErr
	}
	row, ok := f.rows[id]
	if !ok {
		return store.GlobalIdentity{}, store.ErrNotFound
	}
	return row, nil
}

func (f *fakeDirectory) CreateIdentity(_ context.Context, identity store.GlobalIdentity) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.rows[identity.ID]; exists {
		return store.ErrConflict
	}
	f.rows[identity.ID] = identity
	return nil
}

func (f *fakeDirectory) AddActiveApp(_ context.Context, id, app string) error {
	f.appendCalls++
	if f.appendErr != nil {
		return f.appendErr
	}
	row, ok := f.rows[id]
	if !ok {
		return nil
	}
	if !row.HasApp(app) {
		row.AppsActive = append(row.AppsActive, app)
		row.UpdatedAt = time.Now()
		f.rows[id] = row
	}
	return nil
}

type memoryKV struct {
	values map[string]string
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func newTestSynchronizer(dir Directory) *Synchronizer {
	cache := synccache.New(&memoryKV{values: map[string]string{}}, 24*time.Hour)
	return NewSynchronizer(dir, cache, nil, "flow")
}

func TestEnsureSkipsUserWithoutID(t *testing.T) {
	dir := newFakeDirectory()
	sync := newTestSynchronizer(dir)

	if err := sync.EnsureGlobalIdentity(context.Background(), User{}, false); err != nil {
		t.Fatalf("EnsureGlobalIdentity failed: %v", err)
	}
	if dir.getCalls != 0 || dir.createCalls != 0 {
		t.Errorf("expected no directory calls, got get=%d create=%d", dir.getCalls, dir.createCalls)
	}
}

func TestEnsureCreatesMissingProfile(t *testing.T) {
	dir := newFakeDirectory()
	sync := newTestSynchronizer(dir)
	user := User{ID: "abcdef123456", Name: "Ada Lovelace"}

	if err := sync.EnsureGlobalIdentity(context.Background(), user, false); err != nil {
		t.Fatalf("EnsureGlobalIdentity failed: %v", err)
	}

	row, ok := dir.rows[user.ID]
	if !ok {
		t.Fatal("expected a directory row to be created")
	}
	if row.Username != "userabcdef" {
		t.Errorf("expected fallback username userabcdef, got %q", row.Username)
	}
	if row.DisplayName != "Ada Lovelace" {
		t.Errorf("expected display name from user, got %q", row.DisplayName)
	}
	if len(row.AppsActive) != 1 || row.AppsActive[0] != "flow" {
		t.Errorf("expected appsActive [flow], got %v", row.AppsActive)
	}
	if row.Bio != "" {
		t.Errorf("expected empty bio, got %q", row.Bio)
	}
	if row.PrivacySettings != `{"public":true}` {
		t.Errorf("unexpected privacy settings %q", row.PrivacySettings)
	}
	if len(row.Permissions) != 3 || row.Permissions[0] != `read("any")` {
		t.Errorf("unexpected permissions %v", row.Permissions)
	}
	if !strings.Contains(row.Permissions[1], user.ID) {
		t.Errorf("expected owner-scoped update permission, got %q", row.Permissions[1])
	}
}

func TestEnsureUsesPreferredUsername(t *testing.T) {
	dir := newFakeDirectory()
	sync := newTestSynchronizer(dir)
	user := User{ID: "id-1", Prefs: map[string]string{"username": "Ada", "avatarUrl": "https://cdn/a.png"}}

	if err := sync.EnsureGlobalIdentity(context.Background(), user, false); err != nil {
		t.Fatalf("EnsureGlobalIdentity failed: %v", err)
	}
	row := dir.rows["id-1"]
	if row.Username != "ada" {
		t.Errorf("expected preferred username lower-cased, got %q", row.Username)
	}
	if row.DisplayName != "ada" {
		t.Errorf("expected display name to fall back to username, got %q", row.DisplayName)
	}
	if row.AvatarURL != "https://cdn/a.png" {
		t.Errorf("expected avatar from prefs, got %q", row.AvatarURL)
	}
}

func TestEnsureCanonicalizesUsernameCaseForIndexer(t *testing.T) {
	dir := newFakeDirectory()
	indexed := make([]store.GlobalIdentity, 0)
	indexer := indexerFunc(func(identity store.GlobalIdentity) {
		indexed = append(indexed, identity)
	})
	cache := synccache.New(&memoryKV{values: map[string]string{}}, 24*time.Hour)
	sync := NewSynchronizer(dir, cache, indexer, "flow")
	user := User{ID: "id-1", Prefs: map[string]string{"username": "Ada"}}

	if err := sync.EnsureGlobalIdentity(context.Background(), user, false); err != nil {
		t.Fatalf("EnsureGlobalIdentity failed: %v", err)
	}
	if dir.rows["id-1"].Username != "ada" {
		t.Fatalf("expected stored username ada, got %q", dir.rows["id-1"].Username)
	}
	if len(indexed) != 1 {
		t.Fatalf("expected one indexed profile, got %d", len(indexed))
	}
	// The indexed record must agree with the row store on the canonical
	// username, not the caller-supplied casing.
	if indexed[0].Username != "ada" {
		t.Errorf("expected indexed username ada, got %q", indexed[0].Username)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	dir := newFakeDirectory()
	sync := newTestSynchronizer(dir)
	user := User{ID: "id-1", Name: "Ada"}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := sync.EnsureGlobalIdentity(ctx, user, true); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	if len(dir.rows) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(dir.rows))
	}
	row := dir.rows["id-1"]
	count := 0
	for _, app := range row.AppsActive {
		if app == "flow" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected flow to appear exactly once, got %v", row.AppsActive)
	}
}

func TestEnsureAppendsAppToExistingProfile(t *testing.T) {
	dir := newFakeDirectory()
	dir.rows["id-1"] = store.GlobalIdentity{
		ID:         "id-1",
		Username:   "ada",
		AppsActive: []string{"note", "keep"},
	}
	sync := newTestSynchronizer(dir)

	if err := sync.EnsureGlobalIdentity(context.Background(), User{ID: "id-1"}, false); err != nil {
		t.Fatalf("EnsureGlobalIdentity failed: %v", err)
	}
	if dir.createCalls != 0 {
		t.Errorf("expected no create for an existing profile, got %d", dir.createCalls)
	}
	row := dir.rows["id-1"]
	if len(row.AppsActive) != 3 || !row.HasApp("flow") {
		t.Errorf("expected flow appended once, got %v", row.AppsActive)
	}
}

func TestEnsureRespectsRowPermissionsOnUpdate(t *testing.T) {
	dir := newFakeDirectory()
	dir.rows["id-1"] = store.GlobalIdentity{
		ID:          "id-1",
		Username:    "ada",
		AppsActive:  []string{"note"},
		Permissions: []string{`read("any")`},
	}
	sync := newTestSynchronizer(dir)

	err := sync.EnsureGlobalIdentity(context.Background(), User{ID: "id-1"}, false)
	if err == nil {
		t.Fatal("expected an error when the row grants no update permission")
	}
	if dir.appendCalls != 0 {
		t.Errorf("expected no append against a read-only row, got %d", dir.appendCalls)
	}
}

func TestEnsureUpdatesRowsWithoutRecordedPermissions(t *testing.T) {
	dir := newFakeDirectory()
	dir.rows["id-1"] = store.GlobalIdentity{
		ID:         "id-1",
		Username:   "ada",
		AppsActive: []string{"note"},
	}
	sync := newTestSynchronizer(dir)

	if err := sync.EnsureGlobalIdentity(context.Background(), User{ID: "id-1"}, false); err != nil {
		t.Fatalf("EnsureGlobalIdentity failed: %v", err)
	}
	if !dir.rows["id-1"].HasApp("flow") {
		t.Errorf("expected flow appended to a rule-less row, got %v", dir.rows["id-1"].AppsActive)
	}
}

func TestEnsureCreateConflictFallsThroughToUpdate(t *testing.T) {
	dir := newFakeDirectory()
	// Another app wins the creation race before our insert lands: the row
	// exists, so the fake reports a conflict on create.
	dir.rows["id-1"] = store.GlobalIdentity{
		ID:         "id-1",
		Username:   "ada",
		AppsActive: []string{"connect"},
	}
	sync := newTestSynchronizer(dir)

	profile, err := sync.createProfile(context.Background(), User{ID: "id-1"})
	if err != nil {
		t.Fatalf("createProfile failed: %v", err)
	}
	if profile.Username != "ada" {
		t.Errorf("expected the winner's profile after fallthrough, got %q", profile.Username)
	}
	if dir.createCalls != 1 || dir.getCalls != 1 {
		t.Errorf("expected one create and one fallthrough fetch, got create=%d get=%d", dir.createCalls, dir.getCalls)
	}
}

func TestEnsurePropagatesFetchError(t *testing.T) {
	dir := newFakeDirectory()
	dir.getErr = errors.New("backend down")
	sync := newTestSynchronizer(dir)

	err := sync.EnsureGlobalIdentity(context.Background(), User{ID: "id-1"}, false)
	if err == nil {
		t.Fatal("expected the fetch error to propagate")
	}
	if dir.createCalls != 0 {
		t.Errorf("expected no create after a non-404 fetch error, got %d", dir.createCalls)
	}
}

func TestEnsureHonorsSyncCache(t *testing.T) {
	dir := newFakeDirectory()
	sync := newTestSynchronizer(dir)
	user := User{ID: "id-1"}
	ctx := context.Background()

	if err := sync.EnsureGlobalIdentity(ctx, user, false); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	callsAfterFirst := dir.getCalls

	if err := sync.EnsureGlobalIdentity(ctx, user, false); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if dir.getCalls != callsAfterFirst {
		t.Error("expected the fresh cache to short-circuit the second call")
	}

	if err := sync.EnsureGlobalIdentity(ctx, user, true); err != nil {
		t.Fatalf("forced call failed: %v", err)
	}
	if dir.getCalls == callsAfterFirst {
		t.Error("expected force=true to bypass the cache")
	}
}

func TestEnsureIndexesReconciledProfile(t *testing.T) {
	dir := newFakeDirectory()
	indexed := make([]store.GlobalIdentity, 0)
	indexer := indexerFunc(func(identity store.GlobalIdentity) {
		indexed = append(indexed, identity)
	})
	cache := synccache.New(&memoryKV{values: map[string]string{}}, 24*time.Hour)
	sync := NewSynchronizer(dir, cache, indexer, "flow")

	if err := sync.EnsureGlobalIdentity(context.Background(), User{ID: "id-1", Name: "Ada"}, false); err != nil {
		t.Fatalf("EnsureGlobalIdentity failed: %v", err)
	}
	if len(indexed) != 1 {
		t.Fatalf("expected one indexed profile, got %d", len(indexed))
	}
	if !indexed[0].HasApp("flow") {
		t.Errorf("expected indexed profile to list flow, got %v", indexed[0].AppsActive)
	}
}

type indexerFunc func(store.GlobalIdentity)

func (f indexerFunc) IndexIdentity(identity store.GlobalIdentity) { f(identity) }
