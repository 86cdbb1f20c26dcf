// Package review holds flagged link creations until an administrator
// disposes of them. A pending request moves PENDING -> APPROVED or
// PENDING -> DENIED, and either terminal state can be reconsidered back
// to PENDING. Approval materializes the real link; the reputation check
// is not repeated for it.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MagnunAVF/shortlinks/internal/links"
	"github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/models"
	"github.com/MagnunAVF/shortlinks/internal/notify"
	"github.com/MagnunAVF/shortlinks/internal/store"
)

var (
	// ErrInvalidStateChange is returned when a transition is not allowed
	// from the request's current status.
	ErrInvalidStateChange = errors.New("review: invalid state change")

	// ErrPendingOrRejected is returned at creation time when the same
	// destination already sits in the queue as pending or denied.
	ErrPendingOrRejected = errors.New("review: destination already pending or rejected")
)

type Store interface {
	CreatePending(ctx context.Context, pending *models.PendingLink) error
	GetPending(ctx context.Context, id uuid.UUID) (*models.PendingLink, error)
	PendingByDestination(ctx context.Context, destination string) (*models.PendingLink, error)
	SavePending(ctx context.Context, pending *models.PendingLink) error
	ListPending(ctx context.Context, status models.ReviewStatus) ([]models.PendingLink, error)
}

// Oracle answers whether a destination looks unsafe. Failures inside the
// implementation surface as "not flagged".
type Oracle interface {
	Flagged(ctx context.Context, destination string) bool
}

// Materializer turns an approved request into a real link. Satisfied by
// the link lifecycle service.
type Materializer interface {
	CheckDestination(ctx context.Context, destination string) error
	Create(ctx context.Context, req links.CreateRequest) (uuid.UUID, error)
}

type Service struct {
	store     Store
	oracle    Oracle
	links     Materializer
	publisher notify.Publisher
	now       func() time.Time
}

func New(st Store, oracle Oracle, materializer Materializer, publisher notify.Publisher) *Service {
	return &Service{
		store:     st,
		oracle:    oracle,
		links:     materializer,
		publisher: publisher,
		now:       time.Now,
	}
}

// Outcome reports how a guarded creation was resolved: either a live
// link or a held pending request, never both.
type Outcome struct {
	LinkID  uuid.UUID
	Pending *models.PendingLink
}

// Create is the guarded entry point for link creation. The destination
// is validated first so nothing is persisted for malformed or blocked
// URLs. A destination the oracle flags is diverted into the review
// queue unless bypass is set.
func (s *Service) Create(ctx context.Context, req links.CreateRequest, bypass bool) (Outcome, error) {
	if err := s.links.CheckDestination(ctx, req.Destination); err != nil {
		return Outcome{}, err
	}

	existing, err := s.store.PendingByDestination(ctx, req.Destination)
	switch {
	case err == nil:
		if existing.Status == models.StatusPending || existing.Status == models.StatusDenied {
			return Outcome{}, ErrPendingOrRejected
		}
	case errors.Is(err, store.ErrNotFound):
		// no prior request for this destination
	default:
		return Outcome{}, err
	}

	if !bypass && s.oracle.Flagged(ctx, req.Destination) {
		return s.hold(ctx, req)
	}

	id, err := s.links.Create(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{LinkID: id}, nil
}

func (s *Service) hold(ctx context.Context, req links.CreateRequest) (Outcome, error) {
	now := s.now()
	pending := &models.PendingLink{
		ID:          uuid.New(),
		Title:       req.Title,
		Destination: req.Destination,
		Owner:       req.Owner,
		OwnerIsOrg:  req.OwnerIsOrg,
		ExpiresAt:   req.ExpiresAt,
		Status:      models.StatusPending,
		History: models.StatusHistory{{
			To:       models.StatusPending,
			Modifier: req.Owner,
			At:       now,
		}},
	}
	if err := s.store.CreatePending(ctx, pending); err != nil {
		if errors.Is(err, store.ErrDuplicateAlias) {
			// lost a race with a concurrent request for the same destination
			return Outcome{}, ErrPendingOrRejected
		}
		return Outcome{}, err
	}
	s.publisher.PublishReview(ctx, notify.ReviewEvent{
		PendingID:   pending.ID,
		Destination: pending.Destination,
		Owner:       pending.Owner,
		To:          models.StatusPending,
		Modifier:    req.Owner,
		At:          now,
	})
	return Outcome{Pending: pending}, nil
}

// Promote approves a pending request and materializes its link. Only a
// request currently in PENDING can be promoted.
func (s *Service) Promote(ctx context.Context, id uuid.UUID, modifier string) (uuid.UUID, error) {
	pending, err := s.store.GetPending(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if pending.Status != models.StatusPending {
		return uuid.Nil, ErrInvalidStateChange
	}

	// The APPROVED transition is persisted before the link exists, so a
	// failed promotion never leaves a live link behind a PENDING request
	// and a retry cannot mint a second link.
	if err := s.transition(ctx, pending, models.StatusApproved, modifier); err != nil {
		return uuid.Nil, err
	}

	linkID, err := s.links.Create(ctx, links.CreateRequest{
		Title:       pending.Title,
		Destination: pending.Destination,
		Owner:       pending.Owner,
		OwnerIsOrg:  pending.OwnerIsOrg,
		ExpiresAt:   pending.ExpiresAt,
	})
	if err != nil {
		// reopen the request so the approval can be retried
		if rerr := s.transition(ctx, pending, models.StatusPending, modifier); rerr != nil {
			logger.FromContext(ctx).Error("reopen after failed promotion",
				"pending_id", pending.ID, "err", rerr)
		}
		return uuid.Nil, err
	}
	return linkID, nil
}

// Reject denies a pending request. Only a request currently in PENDING
// can be rejected.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, modifier string) error {
	pending, err := s.store.GetPending(ctx, id)
	if err != nil {
		return err
	}
	if pending.Status != models.StatusPending {
		return ErrInvalidStateChange
	}
	return s.transition(ctx, pending, models.StatusDenied, modifier)
}

// Reconsider moves a disposed request back to PENDING so it can be
// judged again. The request must be in a terminal state.
func (s *Service) Reconsider(ctx context.Context, id uuid.UUID, modifier string) error {
	pending, err := s.store.GetPending(ctx, id)
	if err != nil {
		return err
	}
	if pending.Status != models.StatusApproved && pending.Status != models.StatusDenied {
		return ErrInvalidStateChange
	}
	return s.transition(ctx, pending, models.StatusPending, modifier)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.PendingLink, error) {
	return s.store.GetPending(ctx, id)
}

// List returns requests in the given status, oldest first. An empty
// status lists the whole queue.
func (s *Service) List(ctx context.Context, status models.ReviewStatus) ([]models.PendingLink, error) {
	return s.store.ListPending(ctx, status)
}

func (s *Service) transition(ctx context.Context, pending *models.PendingLink, to models.ReviewStatus, modifier string) error {
	now := s.now()
	change := models.StatusChange{
		From:     pending.Status,
		To:       to,
		Modifier: modifier,
		At:       now,
	}
	pending.Status = to
	pending.History = append(pending.History, change)
	if err := s.store.SavePending(ctx, pending); err != nil {
		return err
	}
	s.publisher.PublishReview(ctx, notify.ReviewEvent{
		PendingID:   pending.ID,
		Destination: pending.Destination,
		Owner:       pending.Owner,
		From:        change.From,
		To:          change.To,
		Modifier:    modifier,
		At:          now,
	})
	return nil
}
