package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MagnunAVF/shortlinks/internal/models"
)

// InsertVisit appends one visit row. Visits are never updated afterwards.
func (s *Store) InsertVisit(ctx context.Context, visit *models.Visit) error {
	return mapErr(s.db.WithContext(ctx).Create(visit).Error)
}

// IncrementVisitCounters bumps the denormalized counters on the link.
// unique also bumps unique_visits.
func (s *Store) IncrementVisitCounters(ctx context.Context, linkID uuid.UUID, unique bool) error {
	fields := map[string]interface{}{
		"visits": gorm.Expr("visits + 1"),
	}
	if unique {
		fields["unique_visits"] = gorm.Expr("unique_visits + 1")
	}
	return mapErr(s.db.WithContext(ctx).Model(&models.Link{}).
		Where("id = ?", linkID).
		UpdateColumns(fields).Error)
}

// HasVisit reports whether this tracking id has visited the link before.
func (s *Store) HasVisit(ctx context.Context, linkID uuid.UUID, trackingID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Visit{}).
		Where("link_id = ? AND tracking_id = ?", linkID, trackingID).
		Count(&count).Error
	return count > 0, mapErr(err)
}

// VisitsForLink loads the raw visit log for a link, optionally scoped to
// one alias. uuid.Nil spans every link (site-wide geo rollups). Alias is
// matched case-insensitively.
func (s *Store) VisitsForLink(ctx context.Context, linkID uuid.UUID, alias string) ([]models.Visit, error) {
	q := s.db.WithContext(ctx).Model(&models.Visit{})
	if linkID != uuid.Nil {
		q = q.Where("link_id = ?", linkID)
	}
	if alias != "" {
		q = q.Where("alias = ?", strings.ToLower(alias))
	}
	var visits []models.Visit
	err := q.Find(&visits).Error
	return visits, mapErr(err)
}

// ClearVisits purges a link's visit log and zeroes its counters.
// Irreversible.
func (s *Store) ClearVisits(ctx context.Context, linkID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("link_id = ?", linkID).Delete(&models.Visit{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Link{}).
			Where("id = ?", linkID).
			UpdateColumns(map[string]interface{}{"visits": 0, "unique_visits": 0}).Error
	})
	return mapErr(err)
}

// GetOrCreateVisitor returns the tracking id for a source IP, creating
// the registry row if absent. Concurrent first inserts race on the unique
// index; everyone re-reads, so the first writer wins for all of them.
func (s *Store) GetOrCreateVisitor(ctx context.Context, ip string) (uuid.UUID, error) {
	candidate := models.Visitor{ID: uuid.New(), IP: ip}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ip"}}, DoNothing: true}).
		Create(&candidate).Error
	if err != nil {
		return uuid.Nil, mapErr(err)
	}

	var visitor models.Visitor
	if err := s.db.WithContext(ctx).First(&visitor, "ip = ?", ip).Error; err != nil {
		return uuid.Nil, mapErr(err)
	}
	return visitor.ID, nil
}

// ==================== daily traffic rollup ====================

// AddDailyTraffic upserts per-day visit counts. The analytics worker
// calls this with batched counts off the visit-event queue.
func (s *Store) AddDailyTraffic(ctx context.Context, counts map[time.Time]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return mapErr(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for day, n := range counts {
			rec := models.DailyTraffic{Day: day, Visits: n}
			if err := tx.Clauses(onConflictDayAdd).Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	}))
}

// DailyTrafficBetween reads the service-wide rollup, oldest first.
func (s *Store) DailyTrafficBetween(ctx context.Context, from, to time.Time) ([]models.DailyTraffic, error) {
	var rows []models.DailyTraffic
	err := s.db.WithContext(ctx).
		Where("day >= ? AND day <= ?", from, to).
		Order("day ASC").
		Find(&rows).Error
	return rows, mapErr(err)
}
