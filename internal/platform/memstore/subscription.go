package memstore

import (
	"context"
	"sync"

	"github.com/pixmuse/billing/internal/app/service/subscription"
	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/types"
)

type Subscriptions struct {
	mu   sync.RWMutex
	rows []*models.Subscription
}

func NewSubscriptions() *Subscriptions { return &Subscriptions{} }

var _ subscription.Store = (*Subscriptions)(nil)

func (s *Subscriptions) Insert(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *Subscriptions) Update(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == sub.ID {
			cp := *sub
			s.rows[i] = &cp
			return nil
		}
	}
	cp := *sub
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *Subscriptions) ByID(_ context.Context, id string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.ID == id {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Subscriptions) ActiveByUser(_ context.Context, userID string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// latest insert wins, matching the gorm store's created_at desc
	for i := len(s.rows) - 1; i >= 0; i-- {
		row := s.rows[i]
		if row.UserID == userID && row.Status == types.SubscriptionStatusActive {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Subscriptions) ByProviderID(_ context.Context, creemSubscriptionID string) (*models.Subscription, error) {
	if creemSubscriptionID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		row := s.rows[i]
		if row.CreemSubscriptionID != nil && *row.CreemSubscriptionID == creemSubscriptionID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

// Rows returns a snapshot of all subscriptions, for test assertions.
func (s *Subscriptions) Rows() []*models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Subscription, 0, len(s.rows))
	for _, row := range s.rows {
		cp := *row
		out = append(out, &cp)
	}
	return out
}
