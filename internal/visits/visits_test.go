package visits

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortlinks/internal/geo"
	"github.com/MagnunAVF/shortlinks/internal/models"
	"github.com/MagnunAVF/shortlinks/internal/notify"
	"github.com/MagnunAVF/shortlinks/internal/store"
)

type fakeStore struct {
	resolutions map[string]*store.Resolution
	visits      []models.Visit
	visitors    map[string]uuid.UUID
	counters    map[uuid.UUID][2]int64 // visits, unique_visits
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		resolutions: map[string]*store.Resolution{},
		visitors:    map[string]uuid.UUID{},
		counters:    map[uuid.UUID][2]int64{},
	}
}

func (f *fakeStore) addLink(alias string, link models.Link) {
	f.resolutions[alias] = &store.Resolution{
		Link:  link,
		Alias: models.Alias{ID: uuid.New(), LinkID: link.ID, Name: alias},
	}
}

func (f *fakeStore) ResolveAlias(_ context.Context, name string) (*store.Resolution, error) {
	res, ok := f.resolutions[strings.ToLower(name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return res, nil
}

func (f *fakeStore) IncrementVisitCounters(_ context.Context, linkID uuid.UUID, unique bool) error {
	c := f.counters[linkID]
	c[0]++
	if unique {
		c[1]++
	}
	f.counters[linkID] = c
	return nil
}

func (f *fakeStore) HasVisit(_ context.Context, linkID uuid.UUID, trackingID string) (bool, error) {
	for _, v := range f.visits {
		if v.LinkID == linkID && v.TrackingID == trackingID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertVisit(_ context.Context, visit *models.Visit) error {
	f.visits = append(f.visits, *visit)
	return nil
}

func (f *fakeStore) GetOrCreateVisitor(_ context.Context, ip string) (uuid.UUID, error) {
	if id, ok := f.visitors[ip]; ok {
		return id, nil
	}
	id := uuid.New()
	f.visitors[ip] = id
	return id, nil
}

func newRecorder(st *fakeStore) *Recorder {
	return NewRecorder(st, geo.Nop{}, notify.Nop{})
}

func TestVisitResolvesAndRecords(t *testing.T) {
	st := newFakeStore()
	linkID := uuid.New()
	st.addLink("docs", models.Link{ID: linkID, Destination: "https://example.com/docs"})
	r := newRecorder(st)

	res, err := r.Visit(context.Background(), "docs", "t1", "8.8.8.8", "curl/8", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", res.Destination)
	assert.Equal(t, "t1", res.TrackingID)

	require.Len(t, st.visits, 1)
	assert.Equal(t, "docs", st.visits[0].Alias)
	assert.Equal(t, [2]int64{1, 1}, st.counters[linkID])
}

func TestVisitCaseInsensitiveAlias(t *testing.T) {
	st := newFakeStore()
	st.addLink("docs", models.Link{ID: uuid.New(), Destination: "https://example.com"})
	r := newRecorder(st)

	res, err := r.Visit(context.Background(), "DoCs", "t1", "8.8.8.8", "", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", res.Destination)
}

func TestVisitCountsUniquesOnce(t *testing.T) {
	st := newFakeStore()
	linkID := uuid.New()
	st.addLink("go", models.Link{ID: linkID, Destination: "https://example.com"})
	r := newRecorder(st)
	ctx := context.Background()

	for _, tid := range []string{"t1", "t1", "t2"} {
		_, err := r.Visit(ctx, "go", tid, "8.8.8.8", "", "")
		require.NoError(t, err)
	}

	assert.Equal(t, [2]int64{3, 2}, st.counters[linkID])
	assert.Len(t, st.visits, 3)
}

func TestVisitMintsTrackingID(t *testing.T) {
	st := newFakeStore()
	st.addLink("go", models.Link{ID: uuid.New(), Destination: "https://example.com"})
	r := newRecorder(st)
	ctx := context.Background()

	first, err := r.Visit(ctx, "go", "", "10.0.0.7", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, first.TrackingID)

	// Same IP without a cookie gets the same registry identity back.
	second, err := r.Visit(ctx, "go", "", "10.0.0.7", "", "")
	require.NoError(t, err)
	assert.Equal(t, first.TrackingID, second.TrackingID)
}

func TestVisitNotFoundOutcomes(t *testing.T) {
	st := newFakeStore()
	past := time.Now().Add(-time.Hour)

	st.addLink("gone", models.Link{ID: uuid.New(), Destination: "https://x.example", Deleted: true})
	st.addLink("expired", models.Link{ID: uuid.New(), Destination: "https://x.example", ExpiresAt: &past})
	deadAlias := &store.Resolution{
		Link:  models.Link{ID: uuid.New(), Destination: "https://x.example"},
		Alias: models.Alias{Name: "dead", Deleted: true},
	}
	st.resolutions["dead"] = deadAlias

	r := newRecorder(st)
	ctx := context.Background()

	for _, alias := range []string{"missing", "gone", "expired", "dead"} {
		_, err := r.Visit(ctx, alias, "t1", "8.8.8.8", "", "")
		assert.True(t, IsNotFound(err), alias)
	}
	assert.Empty(t, st.visits, "no visit recorded on any not-found outcome")
}

func TestExpirationClearedResolvesAgain(t *testing.T) {
	st := newFakeStore()
	linkID := uuid.New()
	past := time.Now().Add(-time.Hour)
	st.addLink("back", models.Link{ID: linkID, Destination: "https://example.com", ExpiresAt: &past})
	r := newRecorder(st)
	ctx := context.Background()

	_, err := r.Visit(ctx, "back", "t1", "8.8.8.8", "", "")
	require.True(t, IsNotFound(err))

	st.resolutions["back"].Link.ExpiresAt = nil
	_, err = r.Visit(ctx, "back", "t1", "8.8.8.8", "", "")
	assert.NoError(t, err)
}

func TestAppendQuery(t *testing.T) {
	tests := []struct {
		dest, query, want string
	}{
		{"https://example.com/a", "", "https://example.com/a"},
		{"https://example.com/a", "x=1", "https://example.com/a?x=1"},
		{"https://example.com/a?y=2", "x=1", "https://example.com/a?y=2&x=1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AppendQuery(tt.dest, tt.query))
	}
}
