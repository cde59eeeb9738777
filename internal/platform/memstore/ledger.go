// Package memstore provides in-memory Store implementations for tests and
// local development. Semantics mirror the gorm stores: ordering follows
// created_at with insertion order as tie-breaker.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/types"
)

type Ledger struct {
	mu   sync.RWMutex
	rows []*models.CreditTransaction
	seq  map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{seq: make(map[string]int)}
}

var _ ledger.Store = (*Ledger)(nil)

func (s *Ledger) Insert(_ context.Context, tx *models.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tx
	s.seq[cp.ID] = len(s.rows)
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *Ledger) Update(_ context.Context, tx *models.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == tx.ID {
			cp := *tx
			s.rows[i] = &cp
			return nil
		}
	}
	cp := *tx
	s.seq[cp.ID] = len(s.rows)
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *Ledger) GrantsAsc(_ context.Context, userID string) ([]*models.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CreditTransaction
	for _, row := range s.rows {
		if row.UserID == userID && row.Amount > 0 {
			cp := *row
			out = append(out, &cp)
		}
	}
	s.sortAsc(out)
	return out, nil
}

func (s *Ledger) Frozen(_ context.Context, userID string) ([]*models.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CreditTransaction
	for _, row := range s.rows {
		if row.UserID == userID && row.IsFrozen {
			cp := *row
			out = append(out, &cp)
		}
	}
	s.sortAsc(out)
	return out, nil
}

func (s *Ledger) CountRecentSubscriptionGrants(_ context.Context, userID, relatedEntityID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, row := range s.rows {
		if row.UserID != userID || !row.TransactionType.SubscriptionGrant() {
			continue
		}
		if row.CreatedAt.Before(since) {
			continue
		}
		if relatedEntityID != "" && row.RelatedEntityID != relatedEntityID {
			continue
		}
		n++
	}
	return n, nil
}

func (s *Ledger) History(_ context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CreditTransaction
	for _, row := range s.rows {
		if userID == "" || row.UserID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	s.sortAsc(out)
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Rows returns a snapshot of every stored row, for test assertions.
func (s *Ledger) Rows() []*models.CreditTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CreditTransaction, 0, len(s.rows))
	for _, row := range s.rows {
		cp := *row
		out = append(out, &cp)
	}
	s.sortAsc(out)
	return out
}

// RowsOfType filters the snapshot by transaction type.
func (s *Ledger) RowsOfType(t types.TransactionType) []*models.CreditTransaction {
	var out []*models.CreditTransaction
	for _, row := range s.Rows() {
		if row.TransactionType == t {
			out = append(out, row)
		}
	}
	return out
}

func (s *Ledger) sortAsc(rows []*models.CreditTransaction) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return s.seq[rows[i].ID] < s.seq[rows[j].ID]
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}
