// Package visits is the redirect hot path: resolve an alias, record the
// visit, dedupe repeat visitors, and hand the caller a destination plus
// the tracking id to set as a cookie.
package visits

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MagnunAVF/shortlinks/internal/geo"
	"github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/models"
	"github.com/MagnunAVF/shortlinks/internal/notify"
	"github.com/MagnunAVF/shortlinks/internal/store"
)

type Store interface {
	ResolveAlias(ctx context.Context, name string) (*store.Resolution, error)
	IncrementVisitCounters(ctx context.Context, linkID uuid.UUID, unique bool) error
	HasVisit(ctx context.Context, linkID uuid.UUID, trackingID string) (bool, error)
	InsertVisit(ctx context.Context, visit *models.Visit) error
	GetOrCreateVisitor(ctx context.Context, ip string) (uuid.UUID, error)
}

type Recorder struct {
	store     Store
	locator   geo.Locator
	publisher notify.Publisher
	now       func() time.Time
}

func NewRecorder(st Store, locator geo.Locator, publisher notify.Publisher) *Recorder {
	return &Recorder{store: st, locator: locator, publisher: publisher, now: time.Now}
}

// Result is what the HTTP layer needs to answer a redirect: where to
// send the visitor, and which tracking id to set as the cookie.
type Result struct {
	Destination string
	TrackingID  string
}

// Visit records one redirect. A missing, deleted, or expired target is
// not-found and records nothing. The unique check is read-then-write by
// design: two simultaneous first visits from one tracking id may both
// count as unique. That approximation is accepted, not a bug to fix.
func (r *Recorder) Visit(ctx context.Context, aliasName, trackingID, sourceIP, userAgent, referer string) (*Result, error) {
	res, err := r.store.ResolveAlias(ctx, aliasName)
	if err != nil {
		return nil, err
	}
	if res.Link.Deleted || res.Alias.Deleted {
		return nil, store.ErrNotFound
	}
	if res.Link.Expired(r.now()) {
		return nil, store.ErrNotFound
	}

	if trackingID == "" {
		visitorID, err := r.store.GetOrCreateVisitor(ctx, sourceIP)
		if err != nil {
			return nil, err
		}
		trackingID = visitorID.String()
	}

	seen, err := r.store.HasVisit(ctx, res.Link.ID, trackingID)
	if err != nil {
		return nil, err
	}
	if err := r.store.IncrementVisitCounters(ctx, res.Link.ID, !seen); err != nil {
		return nil, err
	}

	loc := r.locator.Locate(sourceIP)
	visit := &models.Visit{
		ID:              uuid.New(),
		LinkID:          res.Link.ID,
		Alias:           res.Alias.Name,
		TrackingID:      trackingID,
		SourceIP:        sourceIP,
		UserAgent:       userAgent,
		Referer:         referer,
		CountryCode:     loc.CountryCode,
		SubdivisionCode: loc.SubdivisionCode,
		VisitedAt:       r.now(),
	}
	if err := r.store.InsertVisit(ctx, visit); err != nil {
		return nil, err
	}

	r.publisher.PublishVisit(ctx, notify.VisitEvent{
		LinkID:     res.Link.ID,
		Alias:      res.Alias.Name,
		TrackingID: trackingID,
		VisitedAt:  visit.VisitedAt,
	})

	logger.FromContext(ctx).Debug("visit recorded",
		"alias", res.Alias.Name, "link_id", res.Link.ID, "unique", !seen)

	return &Result{Destination: res.Link.Destination, TrackingID: trackingID}, nil
}

// AppendQuery re-attaches a stripped query string to the destination,
// per the redirect boundary contract.
func AppendQuery(destination, rawQuery string) string {
	if rawQuery == "" {
		return destination
	}
	sep := "?"
	if strings.Contains(destination, "?") {
		sep = "&"
	}
	return destination + sep + rawQuery
}

// IsNotFound collapses every no-redirect outcome for the caller, which
// must answer a generic 404 without leaking which case applied.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
