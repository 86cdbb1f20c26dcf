// Package access decides who may see or change a link. All functions are
// read-only and safe to call from any request path.
package access

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/MagnunAVF/shortlinks/internal/models"
)

// AdminRole grants edit rights over any link.
const AdminRole = "admin"

type LinkSource interface {
	GetLink(ctx context.Context, id uuid.UUID) (*models.Link, error)
}

type MembershipSource interface {
	OrgNamesOf(ctx context.Context, netid string) ([]string, error)
}

type RoleSource interface {
	HasRole(ctx context.Context, role, entity string) (bool, error)
}

type Resolver struct {
	links LinkSource
	orgs  MembershipSource
	roles RoleSource
}

func NewResolver(links LinkSource, orgs MembershipSource, roles RoleSource) *Resolver {
	return &Resolver{links: links, orgs: orgs, roles: roles}
}

// IsOwner checks direct ownership. For org-owned links every member of
// the owning organization counts as an owner.
func (r *Resolver) IsOwner(ctx context.Context, linkID uuid.UUID, principal string) (bool, error) {
	link, err := r.links.GetLink(ctx, linkID)
	if err != nil {
		return false, err
	}
	return r.ownsLink(ctx, link, principal)
}

// MayView is true for the owner, and for any principal sharing at least
// one organization with the owner. The overlap is computed as a set
// intersection of two independent membership lookups.
func (r *Resolver) MayView(ctx context.Context, linkID uuid.UUID, principal string) (bool, error) {
	link, err := r.links.GetLink(ctx, linkID)
	if err != nil {
		return false, err
	}

	owns, err := r.ownsLink(ctx, link, principal)
	if err != nil {
		return false, err
	}
	if owns {
		return true, nil
	}
	if link.OwnerIsOrg {
		return false, nil
	}

	var (
		wg                       sync.WaitGroup
		ownerOrgs, principalOrgs []string
		ownerErr, principalErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ownerOrgs, ownerErr = r.orgs.OrgNamesOf(ctx, link.Owner)
	}()
	go func() {
		defer wg.Done()
		principalOrgs, principalErr = r.orgs.OrgNamesOf(ctx, principal)
	}()
	wg.Wait()

	if ownerErr != nil {
		return false, ownerErr
	}
	if principalErr != nil {
		return false, principalErr
	}
	return intersects(ownerOrgs, principalOrgs), nil
}

// MayEdit requires ownership or the admin role; organization overlap is
// never enough to modify a link.
func (r *Resolver) MayEdit(ctx context.Context, linkID uuid.UUID, principal string) (bool, error) {
	owns, err := r.IsOwner(ctx, linkID, principal)
	if err != nil {
		return false, err
	}
	if owns {
		return true, nil
	}
	return r.roles.HasRole(ctx, AdminRole, principal)
}

func (r *Resolver) ownsLink(ctx context.Context, link *models.Link, principal string) (bool, error) {
	if !link.OwnerIsOrg {
		return link.Owner == principal, nil
	}
	orgs, err := r.orgs.OrgNamesOf(ctx, principal)
	if err != nil {
		return false, err
	}
	for _, org := range orgs {
		if org == link.Owner {
			return true, nil
		}
	}
	return false, nil
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
