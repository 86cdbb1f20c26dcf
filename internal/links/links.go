// Package links owns the link and alias lifecycle: creation, mutation,
// soft deletion, and the blacklist/block cascades. Nothing here is ever
// hard-deleted; visit history and deletion metadata stay behind.
package links

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/models"
	"github.com/MagnunAVF/shortlinks/internal/store"
)

const (
	aliasMinLen = 4
	aliasMaxLen = 32

	// attempts at inserting a generated alias before giving up; losing
	// this many unique-constraint races means the code space is
	// misconfigured, which is fatal.
	createAttempts = 8
)

var aliasCharset = regexp.MustCompile(`^[a-z0-9_-]+$`)

type Store interface {
	CreateLink(ctx context.Context, link *models.Link) error
	GetLink(ctx context.Context, id uuid.UUID) (*models.Link, error)
	UpdateLinkFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	SoftDeleteLink(ctx context.Context, id uuid.UUID, by *models.Deleter, now time.Time) error
	LinksByDestinationSubstring(ctx context.Context, fragment string) ([]models.Link, error)
	BlacklistOwnerLinks(ctx context.Context, netid string, now time.Time) (int64, error)
	UnblacklistOwnerLinks(ctx context.Context, netid string) (int64, error)
	BlockLinks(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error)
	UnblockLinks(ctx context.Context, ids []uuid.UUID) (int64, error)

	CreateAlias(ctx context.Context, alias *models.Alias) error
	AliasOnLink(ctx context.Context, linkID uuid.UUID, name string) (*models.Alias, error)
	LiveAliasExists(ctx context.Context, name string) (bool, error)
	UndeleteAlias(ctx context.Context, id uuid.UUID, description string) error
	SoftDeleteAlias(ctx context.Context, linkID uuid.UUID, name string) error

	ClearVisits(ctx context.Context, linkID uuid.UUID) error
}

// DestinationGuard is the blocked-destination check consulted on every
// create and destination change.
type DestinationGuard interface {
	Blocked(ctx context.Context, destination string) bool
}

type CodeGenerator interface {
	Generate() (string, error)
	Reserved(name string) bool
}

type Service struct {
	store Store
	guard DestinationGuard
	gen   CodeGenerator
	now   func() time.Time
}

func NewService(st Store, guard DestinationGuard, gen CodeGenerator) *Service {
	return &Service{store: st, guard: guard, gen: gen, now: time.Now}
}

type CreateRequest struct {
	Title       string
	Destination string
	Owner       string
	OwnerIsOrg  bool
	ExpiresAt   *time.Time
	SourceIP    string
}

// Create validates the destination and persists a link with no aliases.
// Attaching the first alias is a separate CreateOrModifyAlias call.
func (s *Service) Create(ctx context.Context, req CreateRequest) (uuid.UUID, error) {
	if err := s.checkDestination(ctx, req.Destination); err != nil {
		return uuid.Nil, err
	}

	link := &models.Link{
		ID:          uuid.New(),
		Title:       req.Title,
		Destination: req.Destination,
		Owner:       req.Owner,
		OwnerIsOrg:  req.OwnerIsOrg,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		return uuid.Nil, err
	}

	logger.FromContext(ctx).Info("link created",
		"link_id", link.ID, "owner", req.Owner, "source_ip", req.SourceIP)
	return link.ID, nil
}

type ModifyRequest struct {
	Title       *string
	Destination *string
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Modify updates link metadata. A changed destination is re-validated
// against the same blocked-domain rules as creation.
func (s *Service) Modify(ctx context.Context, linkID uuid.UUID, req ModifyRequest) error {
	fields := map[string]interface{}{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Destination != nil {
		if err := s.checkDestination(ctx, *req.Destination); err != nil {
			return err
		}
		fields["destination"] = *req.Destination
	}
	if req.ClearExpiry {
		fields["expires_at"] = nil
	} else if req.ExpiresAt != nil {
		fields["expires_at"] = *req.ExpiresAt
	}
	if len(fields) == 0 {
		return nil
	}
	return s.store.UpdateLinkFields(ctx, linkID, fields)
}

// CreateOrModifyAlias attaches an alias to a link. With an empty name the
// generator picks one; collisions with concurrent inserts are retried on
// the store's unique-constraint signal. A supplied name is canonicalized
// to lower case, validated, and follows the recovery path when it was
// soft-deleted on the same link.
func (s *Service) CreateOrModifyAlias(ctx context.Context, linkID uuid.UUID, name, description string) (string, error) {
	if _, err := s.store.GetLink(ctx, linkID); err != nil {
		return "", err
	}

	if name == "" {
		return s.createGeneratedAlias(ctx, linkID, description)
	}

	name = strings.ToLower(name)
	if err := s.validateAliasName(name); err != nil {
		return "", err
	}

	existing, err := s.store.AliasOnLink(ctx, linkID, name)
	switch {
	case err == nil && existing.Deleted:
		// Re-creating a soft-deleted alias on the same link un-deletes it.
		if err := s.store.UndeleteAlias(ctx, existing.ID, description); err != nil {
			return "", err
		}
		return name, nil
	case err == nil:
		// Alias already live on this link: modify its description.
		return name, s.store.UndeleteAlias(ctx, existing.ID, description)
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}

	// User-facing pre-check only; the unique constraint is authoritative.
	if taken, err := s.store.LiveAliasExists(ctx, name); err != nil {
		return "", err
	} else if taken {
		return "", &BadAliasError{Alias: name, Reason: "already in use"}
	}

	alias := &models.Alias{ID: uuid.New(), LinkID: linkID, Name: name, Description: description}
	if err := s.store.CreateAlias(ctx, alias); err != nil {
		if errors.Is(err, store.ErrDuplicateAlias) {
			return "", &BadAliasError{Alias: name, Reason: "already in use"}
		}
		return "", err
	}
	return name, nil
}

func (s *Service) createGeneratedAlias(ctx context.Context, linkID uuid.UUID, description string) (string, error) {
	for i := 0; i < createAttempts; i++ {
		code, err := s.gen.Generate()
		if err != nil {
			return "", err
		}
		alias := &models.Alias{ID: uuid.New(), LinkID: linkID, Name: code, Description: description}
		err = s.store.CreateAlias(ctx, alias)
		if errors.Is(err, store.ErrDuplicateAlias) {
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", errors.New("links: generated alias space exhausted")
}

// Delete soft-deletes a link on behalf of an actor. Deleting a link that
// is already deleted reports not-found; history is never removed.
func (s *Service) Delete(ctx context.Context, linkID uuid.UUID, actor string) error {
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		return err
	}
	if link.Deleted {
		return store.ErrNotFound
	}
	if err := s.store.SoftDeleteLink(ctx, linkID, models.AdminDeleter(actor), s.now()); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("link deleted", "link_id", linkID, "actor", actor)
	return nil
}

func (s *Service) DeleteAlias(ctx context.Context, linkID uuid.UUID, name string) error {
	return s.store.SoftDeleteAlias(ctx, linkID, name)
}

// ClearVisits purges a link's visit log and counters. Irreversible.
func (s *Service) ClearVisits(ctx context.Context, linkID uuid.UUID) error {
	if _, err := s.store.GetLink(ctx, linkID); err != nil {
		return err
	}
	return s.store.ClearVisits(ctx, linkID)
}

// BlacklistOwner soft-deletes every live link owned by netid with the
// blacklist cascade tag, so UnblacklistOwner can reverse exactly this
// set and nothing else.
func (s *Service) BlacklistOwner(ctx context.Context, netid string) (int64, error) {
	n, err := s.store.BlacklistOwnerLinks(ctx, netid, s.now())
	if err == nil && n > 0 {
		logger.FromContext(ctx).Info("owner links blacklisted", "owner", netid, "count", n)
	}
	return n, err
}

func (s *Service) UnblacklistOwner(ctx context.Context, netid string) (int64, error) {
	return s.store.UnblacklistOwnerLinks(ctx, netid)
}

// LinkIDsMatchingDomain scans all destinations for a domain fragment.
// Feeds the block/unblock batch operations.
func (s *Service) LinkIDsMatchingDomain(ctx context.Context, domain string) ([]uuid.UUID, error) {
	matches, err := s.store.LinksByDestinationSubstring(ctx, domain)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(matches))
	for _, link := range matches {
		ids = append(ids, link.ID)
	}
	return ids, nil
}

func (s *Service) BlockURLs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	n, err := s.store.BlockLinks(ctx, ids, s.now())
	if err == nil && n > 0 {
		logger.FromContext(ctx).Info("links blocked", "count", n)
	}
	return n, err
}

// UnblockURLs clears deletion only for links the block cascade deleted,
// protecting independently deleted links from resurrection.
func (s *Service) UnblockURLs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	return s.store.UnblockLinks(ctx, ids)
}

// CheckDestination validates a destination without persisting anything.
// The review flow runs it before deciding whether to hold a creation.
func (s *Service) CheckDestination(ctx context.Context, destination string) error {
	return s.checkDestination(ctx, destination)
}

func (s *Service) checkDestination(ctx context.Context, destination string) error {
	u, err := url.Parse(destination)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &BadDestinationError{Destination: destination, Reason: "must be an absolute http(s) URL"}
	}
	if s.guard.Blocked(ctx, destination) {
		return &BadDestinationError{Destination: destination, Reason: "matches a blocked domain"}
	}
	return nil
}

func (s *Service) validateAliasName(name string) error {
	if len(name) < aliasMinLen || len(name) > aliasMaxLen {
		return &BadAliasError{Alias: name, Reason: "length must be 4-32 characters"}
	}
	if !aliasCharset.MatchString(name) {
		return &BadAliasError{Alias: name, Reason: "only lowercase letters, digits, - and _ are allowed"}
	}
	if s.gen.Reserved(name) {
		return &BadAliasError{Alias: name, Reason: "reserved word"}
	}
	return nil
}
