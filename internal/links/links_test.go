package links

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortlinks/internal/models"
	"github.com/MagnunAVF/shortlinks/internal/shortcode"
	"github.com/MagnunAVF/shortlinks/internal/store"
)

type fakeStore struct {
	links   map[uuid.UUID]*models.Link
	aliases map[uuid.UUID]*models.Alias
	visits  map[uuid.UUID][]models.Visit
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		links:   map[uuid.UUID]*models.Link{},
		aliases: map[uuid.UUID]*models.Alias{},
		visits:  map[uuid.UUID][]models.Visit{},
	}
}

func (f *fakeStore) CreateLink(_ context.Context, link *models.Link) error {
	f.links[link.ID] = link
	return nil
}

func (f *fakeStore) GetLink(_ context.Context, id uuid.UUID) (*models.Link, error) {
	link, ok := f.links[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return link, nil
}

func (f *fakeStore) UpdateLinkFields(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	link, ok := f.links[id]
	if !ok {
		return store.ErrNotFound
	}
	if v, ok := fields["title"]; ok {
		link.Title = v.(string)
	}
	if v, ok := fields["destination"]; ok {
		link.Destination = v.(string)
	}
	if v, ok := fields["expires_at"]; ok {
		if v == nil {
			link.ExpiresAt = nil
		} else {
			t := v.(time.Time)
			link.ExpiresAt = &t
		}
	}
	return nil
}

func (f *fakeStore) SoftDeleteLink(_ context.Context, id uuid.UUID, by *models.Deleter, now time.Time) error {
	link, ok := f.links[id]
	if !ok {
		return store.ErrNotFound
	}
	link.Deleted = true
	link.DeletedBy = by
	link.DeletedAt = &now
	return nil
}

func (f *fakeStore) LinksByDestinationSubstring(_ context.Context, fragment string) ([]models.Link, error) {
	var out []models.Link
	for _, link := range f.links {
		if strings.Contains(link.Destination, fragment) {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (f *fakeStore) BlacklistOwnerLinks(_ context.Context, netid string, now time.Time) (int64, error) {
	var n int64
	for _, link := range f.links {
		if link.Owner == netid && !link.Deleted {
			link.Deleted = true
			link.DeletedBy = models.BlacklistDeleter()
			link.DeletedAt = &now
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UnblacklistOwnerLinks(_ context.Context, netid string) (int64, error) {
	var n int64
	for _, link := range f.links {
		if link.Owner == netid && link.DeletedBy != nil && link.DeletedBy.Kind == models.DeleterBlacklist {
			link.Deleted = false
			link.DeletedBy = nil
			link.DeletedAt = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) BlockLinks(_ context.Context, ids []uuid.UUID, now time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if link, ok := f.links[id]; ok && !link.Deleted {
			link.Deleted = true
			link.DeletedBy = models.BlockDeleter()
			link.DeletedAt = &now
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UnblockLinks(_ context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if link, ok := f.links[id]; ok && link.DeletedBy != nil && link.DeletedBy.Kind == models.DeleterBlock {
			link.Deleted = false
			link.DeletedBy = nil
			link.DeletedAt = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateAlias(_ context.Context, alias *models.Alias) error {
	for _, a := range f.aliases {
		if a.Name == alias.Name && !a.Deleted {
			return store.ErrDuplicateAlias
		}
	}
	f.aliases[alias.ID] = alias
	return nil
}

func (f *fakeStore) AliasOnLink(_ context.Context, linkID uuid.UUID, name string) (*models.Alias, error) {
	for _, a := range f.aliases {
		if a.LinkID == linkID && a.Name == strings.ToLower(name) {
			return a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) LiveAliasExists(_ context.Context, name string) (bool, error) {
	for _, a := range f.aliases {
		if a.Name == strings.ToLower(name) && !a.Deleted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UndeleteAlias(_ context.Context, id uuid.UUID, description string) error {
	a, ok := f.aliases[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Deleted = false
	a.Description = description
	return nil
}

func (f *fakeStore) SoftDeleteAlias(_ context.Context, linkID uuid.UUID, name string) error {
	for _, a := range f.aliases {
		if a.LinkID == linkID && a.Name == strings.ToLower(name) && !a.Deleted {
			a.Deleted = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ClearVisits(_ context.Context, linkID uuid.UUID) error {
	f.visits[linkID] = nil
	if link, ok := f.links[linkID]; ok {
		link.Visits = 0
		link.UniqueVisits = 0
	}
	return nil
}

type allowAllGuard struct{ blocked map[string]bool }

func (g *allowAllGuard) Blocked(_ context.Context, destination string) bool {
	return g.blocked[destination]
}

func newTestService() (*Service, *fakeStore, *allowAllGuard) {
	st := newFakeStore()
	guard := &allowAllGuard{blocked: map[string]bool{}}
	svc := NewService(st, guard, shortcode.New(shortcode.DefaultReserved))
	return svc, st, guard
}

func mustCreate(t *testing.T, svc *Service, owner, destination string) uuid.UUID {
	t.Helper()
	id, err := svc.Create(context.Background(), CreateRequest{
		Title:       "test link",
		Destination: destination,
		Owner:       owner,
	})
	require.NoError(t, err)
	return id
}

func TestCreateAndGet(t *testing.T) {
	svc, st, _ := newTestService()

	id := mustCreate(t, svc, "alice", "https://example.com")

	link := st.links[id]
	require.NotNil(t, link)
	assert.Equal(t, "https://example.com", link.Destination)
	assert.False(t, link.Deleted)
	assert.Empty(t, link.Aliases)
}

func TestCreateRejectsBlockedDestination(t *testing.T) {
	svc, st, guard := newTestService()
	guard.blocked["https://evil.example/login"] = true

	_, err := svc.Create(context.Background(), CreateRequest{
		Destination: "https://evil.example/login",
		Owner:       "alice",
	})

	var bad *BadDestinationError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "https://evil.example/login", bad.Destination)
	assert.Empty(t, st.links, "nothing persisted on rejection")
}

func TestCreateRejectsMalformedDestination(t *testing.T) {
	svc, _, _ := newTestService()

	for _, dest := range []string{"", "not a url", "ftp://example.com", "javascript:alert(1)"} {
		_, err := svc.Create(context.Background(), CreateRequest{Destination: dest, Owner: "alice"})
		var bad *BadDestinationError
		assert.ErrorAs(t, err, &bad, dest)
	}
}

func TestModify(t *testing.T) {
	svc, st, guard := newTestService()
	id := mustCreate(t, svc, "alice", "https://example.com")

	title := "renamed"
	require.NoError(t, svc.Modify(context.Background(), id, ModifyRequest{Title: &title}))
	assert.Equal(t, "renamed", st.links[id].Title)

	blocked := "https://evil.example"
	guard.blocked[blocked] = true
	err := svc.Modify(context.Background(), id, ModifyRequest{Destination: &blocked})
	var bad *BadDestinationError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "https://example.com", st.links[id].Destination, "destination unchanged on rejection")

	err = svc.Modify(context.Background(), uuid.New(), ModifyRequest{Title: &title})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExpirationSetAndClear(t *testing.T) {
	svc, st, _ := newTestService()
	id := mustCreate(t, svc, "alice", "https://example.com")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, svc.Modify(context.Background(), id, ModifyRequest{ExpiresAt: &past}))
	assert.True(t, st.links[id].Expired(time.Now()))

	require.NoError(t, svc.Modify(context.Background(), id, ModifyRequest{ClearExpiry: true}))
	assert.Nil(t, st.links[id].ExpiresAt)
	assert.False(t, st.links[id].Expired(time.Now()))
}

func TestCreateGeneratedAlias(t *testing.T) {
	svc, _, _ := newTestService()
	id := mustCreate(t, svc, "alice", "https://example.com")

	name, err := svc.CreateOrModifyAlias(context.Background(), id, "", "auto")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(name), 4)
	assert.LessOrEqual(t, len(name), 8)
}

func TestCreateCustomAlias(t *testing.T) {
	svc, st, _ := newTestService()
	id := mustCreate(t, svc, "alice", "https://example.com")

	name, err := svc.CreateOrModifyAlias(context.Background(), id, "My-Link", "desc")
	require.NoError(t, err)
	assert.Equal(t, "my-link", name, "canonicalized to lower case")

	alias, err := st.AliasOnLink(context.Background(), id, "my-link")
	require.NoError(t, err)
	assert.Equal(t, "desc", alias.Description)
}

func TestAliasValidation(t *testing.T) {
	svc, _, _ := newTestService()
	id := mustCreate(t, svc, "alice", "https://example.com")
	ctx := context.Background()

	tests := []struct {
		name   string
		reason string
	}{
		{"abc", "too short"},
		{strings.Repeat("a", 33), "too long"},
		{"has space", "bad charset"},
		{"café", "non-ascii"},
		{"admin", "reserved word"},
	}
	for _, tt := range tests {
		_, err := svc.CreateOrModifyAlias(ctx, id, tt.name, "")
		var bad *BadAliasError
		assert.ErrorAs(t, err, &bad, tt.reason)
	}
}

func TestAliasCollision(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	first := mustCreate(t, svc, "alice", "https://example.com")
	second := mustCreate(t, svc, "bob", "https://other.example")

	_, err := svc.CreateOrModifyAlias(ctx, first, "shared", "")
	require.NoError(t, err)

	_, err = svc.CreateOrModifyAlias(ctx, second, "shared", "")
	var bad *BadAliasError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "shared", bad.Alias)

	// Case-insensitive collision.
	_, err = svc.CreateOrModifyAlias(ctx, second, "SHARED", "")
	assert.ErrorAs(t, err, &bad)
}

func TestAliasUndeleteRecovery(t *testing.T) {
	svc, st, _ := newTestService()
	ctx := context.Background()
	id := mustCreate(t, svc, "alice", "https://example.com")

	_, err := svc.CreateOrModifyAlias(ctx, id, "mine", "old words")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAlias(ctx, id, "mine"))

	// Re-creating the deleted alias on the same link un-deletes it.
	name, err := svc.CreateOrModifyAlias(ctx, id, "mine", "new words")
	require.NoError(t, err)
	assert.Equal(t, "mine", name)

	alias, err := st.AliasOnLink(ctx, id, "mine")
	require.NoError(t, err)
	assert.False(t, alias.Deleted)
	assert.Equal(t, "new words", alias.Description)
}

func TestDeleteAliasFreesNameForOthers(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	first := mustCreate(t, svc, "alice", "https://example.com")
	second := mustCreate(t, svc, "bob", "https://other.example")

	_, err := svc.CreateOrModifyAlias(ctx, first, "wanted", "")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAlias(ctx, first, "wanted"))

	_, err = svc.CreateOrModifyAlias(ctx, second, "wanted", "")
	assert.NoError(t, err, "soft-deleted alias does not block other links")
}

func TestDeleteLink(t *testing.T) {
	svc, st, _ := newTestService()
	ctx := context.Background()
	id := mustCreate(t, svc, "alice", "https://example.com")

	require.NoError(t, svc.Delete(ctx, id, "alice"))

	link := st.links[id]
	assert.True(t, link.Deleted)
	require.NotNil(t, link.DeletedBy)
	assert.Equal(t, models.DeleterAdmin, link.DeletedBy.Kind)
	assert.Equal(t, "alice", link.DeletedBy.NetID)
	assert.NotNil(t, link.DeletedAt)

	// Deleting again is not-found, never a hard removal.
	assert.ErrorIs(t, svc.Delete(ctx, id, "alice"), store.ErrNotFound)
	assert.Contains(t, st.links, id)
}

func TestBlacklistCascadeIsReversible(t *testing.T) {
	svc, st, _ := newTestService()
	ctx := context.Background()

	kept := mustCreate(t, svc, "mallory", "https://one.example")
	independent := mustCreate(t, svc, "mallory", "https://two.example")
	require.NoError(t, svc.Delete(ctx, independent, "admin-dana"))

	n, err := svc.BlacklistOwner(ctx, "mallory")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "already-deleted link not re-tagged")
	assert.True(t, st.links[kept].Deleted)

	n, err = svc.UnblacklistOwner(ctx, "mallory")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, st.links[kept].Deleted)
	assert.True(t, st.links[independent].Deleted, "independently deleted link stays deleted")
}

func TestBlockCascade(t *testing.T) {
	svc, st, _ := newTestService()
	ctx := context.Background()

	target := mustCreate(t, svc, "alice", "https://bad.example/page")
	other := mustCreate(t, svc, "bob", "https://good.example")

	ids, err := svc.LinkIDsMatchingDomain(ctx, "bad.example")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{target}, ids)

	n, err := svc.BlockURLs(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, st.links[target].Deleted)
	assert.False(t, st.links[other].Deleted)

	n, err = svc.UnblockURLs(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, st.links[target].Deleted)
}

func TestClearVisits(t *testing.T) {
	svc, st, _ := newTestService()
	ctx := context.Background()
	id := mustCreate(t, svc, "alice", "https://example.com")
	st.links[id].Visits = 10
	st.links[id].UniqueVisits = 4

	require.NoError(t, svc.ClearVisits(ctx, id))
	assert.Zero(t, st.links[id].Visits)
	assert.Zero(t, st.links[id].UniqueVisits)

	assert.ErrorIs(t, svc.ClearVisits(ctx, uuid.New()), store.ErrNotFound)
}
