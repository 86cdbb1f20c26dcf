package roles

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortlinks/internal/models"
	"github.com/MagnunAVF/shortlinks/internal/store"
)

type grantKey struct {
	role, entity string
}

type fakeGrantStore struct {
	grants map[grantKey]bool
}

func newFakeGrantStore() *fakeGrantStore {
	return &fakeGrantStore{grants: make(map[grantKey]bool)}
}

func (f *fakeGrantStore) GrantRole(_ context.Context, g *models.RoleGrant) error {
	k := grantKey{g.Role, g.Entity}
	if f.grants[k] {
		return store.ErrDuplicateAlias
	}
	f.grants[k] = true
	return nil
}

func (f *fakeGrantStore) RevokeRole(_ context.Context, role, entity string) error {
	k := grantKey{role, entity}
	if !f.grants[k] {
		return store.ErrNotFound
	}
	delete(f.grants, k)
	return nil
}

func (f *fakeGrantStore) HasRole(_ context.Context, role, entity string) (bool, error) {
	return f.grants[grantKey{role, entity}], nil
}

func (f *fakeGrantStore) RoleEntities(_ context.Context, role string) ([]string, error) {
	var out []string
	for k := range f.grants {
		if k.role == role {
			out = append(out, k.entity)
		}
	}
	return out, nil
}

// fakeLinkOps records cascade calls and pretends two links match any
// domain scan.
type fakeLinkOps struct {
	blacklisted   []string
	unblacklisted []string
	blocked       [][]uuid.UUID
	unblocked     [][]uuid.UUID
	matching      []uuid.UUID
}

func (f *fakeLinkOps) BlacklistOwner(_ context.Context, netid string) (int64, error) {
	f.blacklisted = append(f.blacklisted, netid)
	return 2, nil
}

func (f *fakeLinkOps) UnblacklistOwner(_ context.Context, netid string) (int64, error) {
	f.unblacklisted = append(f.unblacklisted, netid)
	return 2, nil
}

func (f *fakeLinkOps) LinkIDsMatchingDomain(context.Context, string) ([]uuid.UUID, error) {
	return f.matching, nil
}

func (f *fakeLinkOps) BlockURLs(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.blocked = append(f.blocked, ids)
	return int64(len(ids)), nil
}

func (f *fakeLinkOps) UnblockURLs(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.unblocked = append(f.unblocked, ids)
	return int64(len(ids)), nil
}

func newTestService() (*Service, *fakeGrantStore, *fakeLinkOps) {
	ops := &fakeLinkOps{matching: []uuid.UUID{uuid.New(), uuid.New()}}
	st := newFakeGrantStore()
	return NewService(NewRegistry(ops), st), st, ops
}

func TestRegistryKinds(t *testing.T) {
	svc, _, _ := newTestService()
	assert.Equal(t, []string{Admin, Blacklisted, BlockedURL, PowerUser}, svc.Kinds())
}

func TestGrantAdmin(t *testing.T) {
	svc, st, ops := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, Admin, "alice", "root"))

	has, err := svc.Has(ctx, Admin, "alice")
	require.NoError(t, err)
	assert.True(t, has)
	assert.True(t, st.grants[grantKey{Admin, "alice"}])

	// plain user roles carry no link side effects
	assert.Empty(t, ops.blacklisted)
	assert.Empty(t, ops.blocked)
}

func TestGrantUnknownRole(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.Grant(context.Background(), "superuser", "alice", "root")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestGrantDuplicate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, PowerUser, "alice", "root"))
	err := svc.Grant(ctx, PowerUser, "alice", "root")
	assert.ErrorIs(t, err, ErrAlreadyGranted)
}

func TestGrantEntityValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// netids must not look like domains, and blocked_url entities must
	for _, tc := range []struct {
		role, entity string
	}{
		{Admin, "Not A NetID"},
		{Blacklisted, ""},
		{BlockedURL, "no-dots"},
		{BlockedURL, "spaces in.com"},
	} {
		err := svc.Grant(ctx, tc.role, tc.entity, "root")
		assert.ErrorIs(t, err, ErrBadEntity, "%s/%s", tc.role, tc.entity)
	}

	require.NoError(t, svc.Grant(ctx, BlockedURL, "evil.example.com", "root"))
}

func TestBlacklistCascade(t *testing.T) {
	svc, _, ops := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, Blacklisted, "mallory", "admin1"))
	assert.Equal(t, []string{"mallory"}, ops.blacklisted)

	require.NoError(t, svc.Revoke(ctx, Blacklisted, "mallory"))
	assert.Equal(t, []string{"mallory"}, ops.unblacklisted)

	has, err := svc.Has(ctx, Blacklisted, "mallory")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBlockedURLCascade(t *testing.T) {
	svc, _, ops := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, BlockedURL, "evil.example.com", "admin1"))
	require.Len(t, ops.blocked, 1)
	assert.Equal(t, ops.matching, ops.blocked[0])

	require.NoError(t, svc.Revoke(ctx, BlockedURL, "evil.example.com"))
	require.Len(t, ops.unblocked, 1)
	assert.Equal(t, ops.matching, ops.unblocked[0])
}

func TestRevokeMissingGrant(t *testing.T) {
	svc, _, ops := newTestService()
	err := svc.Revoke(context.Background(), Blacklisted, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, ops.unblacklisted, "hooks must not run for missing grants")
}

func TestEntities(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, BlockedURL, "a.example.com", "root"))
	require.NoError(t, svc.Grant(ctx, BlockedURL, "b.example.com", "root"))

	entities, err := svc.Entities(ctx, BlockedURL)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.example.com", "b.example.com"}, entities)

	_, err = svc.Entities(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestQualifies(t *testing.T) {
	reg := NewRegistry(&fakeLinkOps{})
	ctx := context.Background()

	admin, ok := reg.Get(Admin)
	require.True(t, ok)
	assert.True(t, admin.Qualifies(ctx, "alice"))
	assert.False(t, admin.Qualifies(ctx, "Not A NetID"))

	// punitive roles are assigned, never requested
	bl, ok := reg.Get(Blacklisted)
	require.True(t, ok)
	assert.False(t, bl.Qualifies(ctx, "alice"))
}
