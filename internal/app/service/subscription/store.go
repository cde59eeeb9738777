package subscription

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/types"
)

// Store is the subscription persistence surface. GormStore in production,
// memstore.Subscriptions in tests.
type Store interface {
	Insert(ctx context.Context, sub *models.Subscription) error
	Update(ctx context.Context, sub *models.Subscription) error
	ByID(ctx context.Context, id string) (*models.Subscription, error)
	// ActiveByUser returns the user's active subscription, nil when none.
	ActiveByUser(ctx context.Context, userID string) (*models.Subscription, error)
	// ByProviderID looks a subscription up by its Creem subscription id,
	// nil when unknown.
	ByProviderID(ctx context.Context, creemSubscriptionID string) (*models.Subscription, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

var _ Store = (*GormStore)(nil)

func (s *GormStore) Insert(ctx context.Context, sub *models.Subscription) error {
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, sub *models.Subscription) error {
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

func (s *GormStore) ByID(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (s *GormStore) ActiveByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.SubscriptionStatusActive).
		Order("created_at desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return &sub, nil
}

func (s *GormStore) ByProviderID(ctx context.Context, creemSubscriptionID string) (*models.Subscription, error) {
	if creemSubscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("creem_subscription_id = ?", creemSubscriptionID).
		Order("created_at desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by provider id: %w", err)
	}
	return &sub, nil
}
