// Package store is the data access layer: Postgres through GORM for the
// records themselves, Redis as a cache in front of alias resolution.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MagnunAVF/shortlinks/internal/models"
)

var (
	// ErrNotFound is returned for lookups of rows that do not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateAlias is the canonical signal that an alias insert lost
	// to the partial unique index. Callers treat it as an alias collision.
	ErrDuplicateAlias = errors.New("store: alias already exists")
)

const resolveCacheTTL = time.Hour

// Store requires the gorm connection to be opened with TranslateError so
// unique violations surface as gorm.ErrDuplicatedKey.
type Store struct {
	db  *gorm.DB
	rdb *redis.Client // nil disables caching
}

func New(db *gorm.DB, rdb *redis.Client) *Store {
	return &Store{db: db, rdb: rdb}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(models.All()...)
}

func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateAlias
	}
	return err
}

// ==================== links ====================

func (s *Store) CreateLink(ctx context.Context, link *models.Link) error {
	return mapErr(s.db.WithContext(ctx).Create(link).Error)
}

func (s *Store) GetLink(ctx context.Context, id uuid.UUID) (*models.Link, error) {
	var link models.Link
	err := s.db.WithContext(ctx).Preload("Aliases").First(&link, "id = ?", id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &link, nil
}

// UpdateLinkFields writes the given columns and drops any cached
// resolutions for the link's aliases.
func (s *Store) UpdateLinkFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Link{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.invalidateLinks(ctx, id)
	return nil
}

func (s *Store) SoftDeleteLink(ctx context.Context, id uuid.UUID, by *models.Deleter, now time.Time) error {
	return s.UpdateLinkFields(ctx, id, map[string]interface{}{
		"deleted":    true,
		"deleted_by": by,
		"deleted_at": now,
	})
}

// LinksOwnedBy returns the owner's non-deleted links.
func (s *Store) LinksOwnedBy(ctx context.Context, owner string) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).
		Where("owner = ? AND deleted = ?", owner, false).
		Order("created_at DESC").
		Find(&links).Error
	return links, mapErr(err)
}

// LinksByDestinationSubstring scans all links whose destination contains
// the given fragment, deleted or not. Used by the domain-block cascade.
func (s *Store) LinksByDestinationSubstring(ctx context.Context, fragment string) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).
		Where("destination ILIKE ?", "%"+fragment+"%").
		Find(&links).Error
	return links, mapErr(err)
}

// BlacklistOwnerLinks soft-deletes every live link owned by netid with
// the blacklist cascade tag.
func (s *Store) BlacklistOwnerLinks(ctx context.Context, netid string, now time.Time) (int64, error) {
	ids, err := s.linkIDsWhere(ctx, "owner = ? AND deleted = ?", netid, false)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("owner = ? AND deleted = ?", netid, false).
		Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_by": models.BlacklistDeleter(),
			"deleted_at": now,
		})
	s.invalidateLinks(ctx, ids...)
	return res.RowsAffected, mapErr(res.Error)
}

// UnblacklistOwnerLinks reverses the blacklist cascade. Links deleted for
// any other reason keep their deletion.
func (s *Store) UnblacklistOwnerLinks(ctx context.Context, netid string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("owner = ? AND deleted_by = ?", netid, models.BlacklistDeleter()).
		Updates(map[string]interface{}{
			"deleted":    false,
			"deleted_by": nil,
			"deleted_at": nil,
		})
	return res.RowsAffected, mapErr(res.Error)
}

func (s *Store) BlockLinks(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("id IN ? AND deleted = ?", ids, false).
		Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_by": models.BlockDeleter(),
			"deleted_at": now,
		})
	s.invalidateLinks(ctx, ids...)
	return res.RowsAffected, mapErr(res.Error)
}

func (s *Store) UnblockLinks(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("id IN ? AND deleted_by = ?", ids, models.BlockDeleter()).
		Updates(map[string]interface{}{
			"deleted":    false,
			"deleted_by": nil,
			"deleted_at": nil,
		})
	return res.RowsAffected, mapErr(res.Error)
}

func (s *Store) linkIDsWhere(ctx context.Context, query string, args ...interface{}) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Link{}).
		Where(query, args...).
		Pluck("id", &ids).Error
	return ids, mapErr(err)
}

// ==================== aliases ====================

func (s *Store) CreateAlias(ctx context.Context, alias *models.Alias) error {
	return mapErr(s.db.WithContext(ctx).Create(alias).Error)
}

// AliasOnLink finds an alias row by name on a specific link, including
// soft-deleted rows (the undelete recovery path needs them).
func (s *Store) AliasOnLink(ctx context.Context, linkID uuid.UUID, name string) (*models.Alias, error) {
	var alias models.Alias
	err := s.db.WithContext(ctx).
		First(&alias, "link_id = ? AND name = ?", linkID, strings.ToLower(name)).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &alias, nil
}

// LiveAliasExists reports whether a non-deleted alias with this name
// exists anywhere in the system.
func (s *Store) LiveAliasExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Alias{}).
		Where("name = ? AND deleted = ?", strings.ToLower(name), false).
		Count(&count).Error
	return count > 0, mapErr(err)
}

func (s *Store) UndeleteAlias(ctx context.Context, id uuid.UUID, description string) error {
	err := s.db.WithContext(ctx).Model(&models.Alias{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"deleted": false, "description": description}).Error
	return mapErr(err)
}

func (s *Store) SoftDeleteAlias(ctx context.Context, linkID uuid.UUID, name string) error {
	name = strings.ToLower(name)
	res := s.db.WithContext(ctx).Model(&models.Alias{}).
		Where("link_id = ? AND name = ? AND deleted = ?", linkID, name, false).
		Update("deleted", true)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.invalidateAliases(ctx, name)
	return nil
}

// ==================== alias resolution (hot path) ====================

// Resolution is an alias lookup result: the alias row plus its link.
type Resolution struct {
	Link  models.Link  `json:"link"`
	Alias models.Alias `json:"alias"`
}

// ResolveAlias looks an alias name up case-insensitively, cache-aside
// through Redis. Soft-deleted aliases never resolve; a resolution whose
// link is deleted or expired is returned as-is for the caller to judge.
func (s *Store) ResolveAlias(ctx context.Context, name string) (*Resolution, error) {
	name = strings.ToLower(name)
	cacheKey := "alias:" + name

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var res Resolution
			if err := json.Unmarshal([]byte(cached), &res); err == nil {
				return &res, nil
			}
		}
	}

	var alias models.Alias
	err := s.db.WithContext(ctx).
		First(&alias, "name = ? AND deleted = ?", name, false).Error
	if err != nil {
		return nil, mapErr(err)
	}

	var link models.Link
	if err := s.db.WithContext(ctx).First(&link, "id = ?", alias.LinkID).Error; err != nil {
		return nil, mapErr(err)
	}

	res := &Resolution{Link: link, Alias: alias}
	if s.rdb != nil {
		if data, err := json.Marshal(res); err == nil {
			s.rdb.Set(ctx, cacheKey, data, resolveCacheTTL)
		}
	}
	return res, nil
}

func (s *Store) invalidateAliases(ctx context.Context, names ...string) {
	if s.rdb == nil || len(names) == 0 {
		return
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = "alias:" + strings.ToLower(n)
	}
	s.rdb.Del(ctx, keys...)
}

func (s *Store) invalidateLinks(ctx context.Context, linkIDs ...uuid.UUID) {
	if s.rdb == nil || len(linkIDs) == 0 {
		return
	}
	var names []string
	if err := s.db.WithContext(ctx).Model(&models.Alias{}).
		Where("link_id IN ?", linkIDs).
		Pluck("name", &names).Error; err != nil {
		return
	}
	s.invalidateAliases(ctx, names...)
}

// upsert shared by the traffic rollup writer.
var onConflictDayAdd = clause.OnConflict{
	Columns: []clause.Column{{Name: "day"}},
	DoUpdates: clause.Assignments(map[string]interface{}{
		"visits": gorm.Expr("daily_traffics.visits + EXCLUDED.visits"),
	}),
}
