package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/types"
)

// Store is the persistence surface the ledger needs. The production
// implementation is GormStore; tests use memstore.Ledger.
type Store interface {
	Insert(ctx context.Context, tx *models.CreditTransaction) error
	Update(ctx context.Context, tx *models.CreditTransaction) error
	// GrantsAsc returns the user's grant rows (amount > 0) ordered by
	// created_at ascending, oldest first.
	GrantsAsc(ctx context.Context, userID string) ([]*models.CreditTransaction, error)
	// Frozen returns the user's currently frozen packages.
	Frozen(ctx context.Context, userID string) ([]*models.CreditTransaction, error)
	// CountRecentSubscriptionGrants counts subscription refill rows
	// (subscription_grant or renewal) created at or after since. A non-empty
	// relatedEntityID narrows the match to that entity.
	CountRecentSubscriptionGrants(ctx context.Context, userID, relatedEntityID string, since time.Time) (int64, error)
	// History returns the user's rows newest first. Empty userID returns
	// rows across all users (admin listing).
	History(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

var _ Store = (*GormStore)(nil)

func (s *GormStore) Insert(ctx context.Context, tx *models.CreditTransaction) error {
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to insert credit transaction: %w", err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, tx *models.CreditTransaction) error {
	if err := s.db.WithContext(ctx).Save(tx).Error; err != nil {
		return fmt.Errorf("failed to update credit transaction: %w", err)
	}
	return nil
}

func (s *GormStore) GrantsAsc(ctx context.Context, userID string) ([]*models.CreditTransaction, error) {
	var rows []*models.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND amount > 0", userID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return rows, nil
}

func (s *GormStore) Frozen(ctx context.Context, userID string) ([]*models.CreditTransaction, error) {
	var rows []*models.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_frozen = ?", userID, true).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list frozen packages: %w", err)
	}
	return rows, nil
}

func (s *GormStore) CountRecentSubscriptionGrants(ctx context.Context, userID, relatedEntityID string, since time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ? AND transaction_type IN ? AND created_at >= ?",
			userID,
			[]types.TransactionType{types.TransactionTypeSubscriptionGrant, types.TransactionTypeRenewal},
			since)
	if relatedEntityID != "" {
		q = q.Where("related_entity_id = ?", relatedEntityID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count recent grants: %w", err)
	}
	return n, nil
}

func (s *GormStore) History(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	q := s.db.WithContext(ctx).Model(&models.CreditTransaction{})
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var rows []*models.CreditTransaction
	err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return rows, nil
}
