// Package roles implements role grants with per-role behavior. Each role
// kind is a Capability value registered once at startup into an immutable
// registry; granting or revoking a role runs the capability's hooks, which
// is how blacklisting and URL blocking cascade onto links.
package roles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"

	"github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/models"
	"github.com/MagnunAVF/shortlinks/internal/store"
)

const (
	Admin       = "admin"
	PowerUser   = "power_user"
	Blacklisted = "blacklisted"
	BlockedURL  = "blocked_url"
)

var (
	ErrUnknownRole    = errors.New("roles: unknown role")
	ErrBadEntity      = errors.New("roles: entity not valid for role")
	ErrAlreadyGranted = errors.New("roles: entity already holds role")
)

var (
	netidPattern  = regexp.MustCompile(`^[a-z][a-z0-9._-]{0,62}$`)
	domainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*\.[a-z]{2,}$`)
)

// Capability is one role kind's behavior. Qualifies reports whether a
// principal may receive the role; Validate checks the shape of the
// entity being granted to (a netid for user roles, a domain for
// blocked_url); OnGrant and OnRevoke run the role's side effects.
type Capability interface {
	Name() string
	Qualifies(ctx context.Context, principal string) bool
	Validate(entity string) bool
	OnGrant(ctx context.Context, entity string) error
	OnRevoke(ctx context.Context, entity string) error
}

// LinkOps is the slice of the link lifecycle manager the cascading role
// kinds call into.
type LinkOps interface {
	BlacklistOwner(ctx context.Context, netid string) (int64, error)
	UnblacklistOwner(ctx context.Context, netid string) (int64, error)
	LinkIDsMatchingDomain(ctx context.Context, domain string) ([]uuid.UUID, error)
	BlockURLs(ctx context.Context, ids []uuid.UUID) (int64, error)
	UnblockURLs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type GrantStore interface {
	GrantRole(ctx context.Context, grant *models.RoleGrant) error
	RevokeRole(ctx context.Context, role, entity string) error
	HasRole(ctx context.Context, role, entity string) (bool, error)
	RoleEntities(ctx context.Context, role string) ([]string, error)
}

// Registry is the fixed set of role kinds. Built once; never mutated.
type Registry struct {
	kinds map[string]Capability
}

// NewRegistry builds the registry of the four role kinds.
func NewRegistry(ops LinkOps) *Registry {
	kinds := map[string]Capability{}
	for _, c := range []Capability{
		userRole{name: Admin},
		userRole{name: PowerUser},
		blacklistedRole{ops: ops},
		blockedURLRole{ops: ops},
	} {
		kinds[c.Name()] = c
	}
	return &Registry{kinds: kinds}
}

func (r *Registry) Get(name string) (Capability, bool) {
	c, ok := r.kinds[name]
	return c, ok
}

// Names lists the registered role kinds, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// userRole covers admin and power_user: a plain grant to a netid with no
// side effects.
type userRole struct {
	name string
}

func (u userRole) Name() string                                { return u.name }
func (u userRole) Qualifies(_ context.Context, p string) bool  { return netidPattern.MatchString(p) }
func (u userRole) Validate(entity string) bool                 { return netidPattern.MatchString(entity) }
func (u userRole) OnGrant(context.Context, string) error       { return nil }
func (u userRole) OnRevoke(context.Context, string) error      { return nil }

// blacklistedRole soft-deletes every link the netid owns on grant and
// restores only blacklist-cascade deletions on revoke.
type blacklistedRole struct {
	ops LinkOps
}

func (b blacklistedRole) Name() string                               { return Blacklisted }
func (b blacklistedRole) Qualifies(context.Context, string) bool     { return false }
func (b blacklistedRole) Validate(entity string) bool                { return netidPattern.MatchString(entity) }

func (b blacklistedRole) OnGrant(ctx context.Context, netid string) error {
	n, err := b.ops.BlacklistOwner(ctx, netid)
	if err != nil {
		return fmt.Errorf("blacklist links of %s: %w", netid, err)
	}
	logger.FromContext(ctx).Info("blacklisted owner", "netid", netid, "links", n)
	return nil
}

func (b blacklistedRole) OnRevoke(ctx context.Context, netid string) error {
	n, err := b.ops.UnblacklistOwner(ctx, netid)
	if err != nil {
		return fmt.Errorf("unblacklist links of %s: %w", netid, err)
	}
	logger.FromContext(ctx).Info("unblacklisted owner", "netid", netid, "links", n)
	return nil
}

// blockedURLRole blocks every link whose destination matches the domain
// on grant and restores only block-cascade deletions on revoke.
type blockedURLRole struct {
	ops LinkOps
}

func (b blockedURLRole) Name() string                           { return BlockedURL }
func (b blockedURLRole) Qualifies(context.Context, string) bool { return false }
func (b blockedURLRole) Validate(entity string) bool            { return domainPattern.MatchString(entity) }

func (b blockedURLRole) OnGrant(ctx context.Context, domain string) error {
	ids, err := b.ops.LinkIDsMatchingDomain(ctx, domain)
	if err != nil {
		return fmt.Errorf("scan links matching %s: %w", domain, err)
	}
	n, err := b.ops.BlockURLs(ctx, ids)
	if err != nil {
		return fmt.Errorf("block links matching %s: %w", domain, err)
	}
	logger.FromContext(ctx).Info("blocked domain", "domain", domain, "links", n)
	return nil
}

func (b blockedURLRole) OnRevoke(ctx context.Context, domain string) error {
	ids, err := b.ops.LinkIDsMatchingDomain(ctx, domain)
	if err != nil {
		return fmt.Errorf("scan links matching %s: %w", domain, err)
	}
	n, err := b.ops.UnblockURLs(ctx, ids)
	if err != nil {
		return fmt.Errorf("unblock links matching %s: %w", domain, err)
	}
	logger.FromContext(ctx).Info("unblocked domain", "domain", domain, "links", n)
	return nil
}

// Service persists grants and runs capability hooks around them.
type Service struct {
	registry *Registry
	store    GrantStore
}

func NewService(registry *Registry, st GrantStore) *Service {
	return &Service{registry: registry, store: st}
}

// Grant gives entity the named role. The grant row is persisted before
// the hook runs so a hook failure leaves the grant visible rather than
// silently half-applied.
func (s *Service) Grant(ctx context.Context, role, entity, grantedBy string) error {
	kind, ok := s.registry.Get(role)
	if !ok {
		return ErrUnknownRole
	}
	if !kind.Validate(entity) {
		return fmt.Errorf("%w: %s %q", ErrBadEntity, role, entity)
	}

	grant := &models.RoleGrant{
		ID:        uuid.New(),
		Role:      role,
		Entity:    entity,
		GrantedBy: grantedBy,
	}
	if err := s.store.GrantRole(ctx, grant); err != nil {
		if errors.Is(err, store.ErrDuplicateAlias) {
			return ErrAlreadyGranted
		}
		return err
	}
	return kind.OnGrant(ctx, entity)
}

// Revoke removes the role from entity and runs the reverse hook.
// Returns store.ErrNotFound when no such grant exists.
func (s *Service) Revoke(ctx context.Context, role, entity string) error {
	kind, ok := s.registry.Get(role)
	if !ok {
		return ErrUnknownRole
	}
	if err := s.store.RevokeRole(ctx, role, entity); err != nil {
		return err
	}
	return kind.OnRevoke(ctx, entity)
}

func (s *Service) Has(ctx context.Context, role, entity string) (bool, error) {
	if _, ok := s.registry.Get(role); !ok {
		return false, ErrUnknownRole
	}
	return s.store.HasRole(ctx, role, entity)
}

// Entities lists every holder of the role.
func (s *Service) Entities(ctx context.Context, role string) ([]string, error) {
	if _, ok := s.registry.Get(role); !ok {
		return nil, ErrUnknownRole
	}
	return s.store.RoleEntities(ctx, role)
}

func (s *Service) Kinds() []string {
	return s.registry.Names()
}
