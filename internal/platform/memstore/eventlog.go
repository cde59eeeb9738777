package memstore

import (
	"context"
	"sync"

	"github.com/pixmuse/billing/internal/app/service/eventlog"
	"github.com/pixmuse/billing/internal/models"
)

type EventLogs struct {
	mu   sync.RWMutex
	rows []*models.WebhookEventLog
}

func NewEventLogs() *EventLogs { return &EventLogs{} }

var _ eventlog.Store = (*EventLogs)(nil)

func (s *EventLogs) Insert(_ context.Context, entry *models.WebhookEventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.rows = append(s.rows, &cp)
	return nil
}

// Rows returns a snapshot of all event log rows, for test assertions.
func (s *EventLogs) Rows() []*models.WebhookEventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.WebhookEventLog, 0, len(s.rows))
	for _, row := range s.rows {
		cp := *row
		out = append(out, &cp)
	}
	return out
}
