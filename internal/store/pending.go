package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/MagnunAVF/shortlinks/internal/models"
)

func (s *Store) CreatePending(ctx context.Context, pending *models.PendingLink) error {
	return mapErr(s.db.WithContext(ctx).Create(pending).Error)
}

func (s *Store) GetPending(ctx context.Context, id uuid.UUID) (*models.PendingLink, error) {
	var pending models.PendingLink
	if err := s.db.WithContext(ctx).First(&pending, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &pending, nil
}

// PendingByDestination is the dedup lookup at creation time.
func (s *Store) PendingByDestination(ctx context.Context, destination string) (*models.PendingLink, error) {
	var pending models.PendingLink
	if err := s.db.WithContext(ctx).First(&pending, "destination = ?", destination).Error; err != nil {
		return nil, mapErr(err)
	}
	return &pending, nil
}

// SavePending persists a status transition (status + history).
func (s *Store) SavePending(ctx context.Context, pending *models.PendingLink) error {
	res := s.db.WithContext(ctx).Model(pending).
		Select("status", "history").
		Updates(models.PendingLink{Status: pending.Status, History: pending.History})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context, status models.ReviewStatus) ([]models.PendingLink, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.PendingLink
	err := q.Find(&rows).Error
	return rows, mapErr(err)
}
