package memstore

import (
	"context"
	"sync"

	"github.com/pixmuse/billing/internal/app/service/order"
	"github.com/pixmuse/billing/internal/models"
)

type Orders struct {
	mu      sync.RWMutex
	orders  []*models.Order
	history []*models.PaymentHistory
}

func NewOrders() *Orders { return &Orders{} }

var _ order.Store = (*Orders)(nil)

func (s *Orders) Insert(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders = append(s.orders, &cp)
	return nil
}

func (s *Orders) ByCreemOrderID(_ context.Context, creemOrderID string) (*models.Order, error) {
	if creemOrderID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].CreemOrderID == creemOrderID {
			cp := *s.orders[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Orders) Update(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.orders {
		if row.ID == o.ID {
			cp := *o
			s.orders[i] = &cp
			return nil
		}
	}
	cp := *o
	s.orders = append(s.orders, &cp)
	return nil
}

func (s *Orders) InsertHistory(_ context.Context, h *models.PaymentHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.history = append(s.history, &cp)
	return nil
}

// Rows returns a snapshot of all orders, for test assertions.
func (s *Orders) Rows() []*models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Order, 0, len(s.orders))
	for _, row := range s.orders {
		cp := *row
		out = append(out, &cp)
	}
	return out
}

// HistoryRows returns a snapshot of all payment history rows.
func (s *Orders) HistoryRows() []*models.PaymentHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.PaymentHistory, 0, len(s.history))
	for _, row := range s.history {
		cp := *row
		out = append(out, &cp)
	}
	return out
}
