package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MagnunAVF/shortlinks/internal/models"
)

// OrgNamesOf returns the names of every organization the netid belongs
// to. The access resolver intersects two of these lists.
func (s *Store) OrgNamesOf(ctx context.Context, netid string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.OrgMember{}).
		Joins("JOIN organizations ON organizations.id = org_members.org_id").
		Where("org_members.net_id = ?", netid).
		Pluck("organizations.name", &names).Error
	return names, mapErr(err)
}

// CreateOrganizationWithAdmin inserts the organization and its founding
// admin member in one transaction.
func (s *Store) CreateOrganizationWithAdmin(ctx context.Context, org *models.Organization, member *models.OrgMember) error {
	return mapErr(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		member.OrgID = org.ID
		return tx.Create(member).Error
	}))
}

func (s *Store) AddOrgMember(ctx context.Context, member *models.OrgMember) error {
	return mapErr(s.db.WithContext(ctx).Create(member).Error)
}

func (s *Store) RemoveOrgMember(ctx context.Context, orgID uuid.UUID, netid string) error {
	res := s.db.WithContext(ctx).
		Where("org_id = ? AND net_id = ?", orgID, netid).
		Delete(&models.OrgMember{})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ==================== role grants ====================

func (s *Store) GrantRole(ctx context.Context, grant *models.RoleGrant) error {
	return mapErr(s.db.WithContext(ctx).Create(grant).Error)
}

func (s *Store) RevokeRole(ctx context.Context, role, entity string) error {
	res := s.db.WithContext(ctx).
		Where("role = ? AND entity = ?", role, entity).
		Delete(&models.RoleGrant{})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) HasRole(ctx context.Context, role, entity string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RoleGrant{}).
		Where("role = ? AND entity = ?", role, entity).
		Count(&count).Error
	return count > 0, mapErr(err)
}

// RoleEntities lists every entity holding a role, e.g. all blocked
// domains under blocked_url.
func (s *Store) RoleEntities(ctx context.Context, role string) ([]string, error) {
	var entities []string
	err := s.db.WithContext(ctx).Model(&models.RoleGrant{}).
		Where("role = ?", role).
		Pluck("entity", &entities).Error
	return entities, mapErr(err)
}

// ==================== phishing table ====================

func (s *Store) PhishingDomains(ctx context.Context) ([]string, error) {
	var domains []string
	err := s.db.WithContext(ctx).Model(&models.PhishingDomain{}).
		Pluck("domain", &domains).Error
	return domains, mapErr(err)
}

func (s *Store) AddPhishingDomain(ctx context.Context, entry *models.PhishingDomain) error {
	return mapErr(s.db.WithContext(ctx).Create(entry).Error)
}
