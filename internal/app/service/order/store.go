package order

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pixmuse/billing/internal/models"
)

// Store is the order persistence surface.
type Store interface {
	Insert(ctx context.Context, o *models.Order) error
	// ByCreemOrderID returns the order, nil when unknown.
	ByCreemOrderID(ctx context.Context, creemOrderID string) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	InsertHistory(ctx context.Context, h *models.PaymentHistory) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

var _ Store = (*GormStore)(nil)

func (s *GormStore) Insert(ctx context.Context, o *models.Order) error {
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *GormStore) ByCreemOrderID(ctx context.Context, creemOrderID string) (*models.Order, error) {
	if creemOrderID == "" {
		return nil, nil
	}
	var o models.Order
	err := s.db.WithContext(ctx).
		Where("creem_order_id = ?", creemOrderID).
		Order("created_at desc").
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &o, nil
}

func (s *GormStore) Update(ctx context.Context, o *models.Order) error {
	if err := s.db.WithContext(ctx).Save(o).Error; err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

func (s *GormStore) InsertHistory(ctx context.Context, h *models.PaymentHistory) error {
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("failed to insert payment history: %w", err)
	}
	return nil
}
