package webhook

import (
	"context"

	"go.uber.org/zap"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/internal/app/service/order"
	"github.com/pixmuse/billing/internal/app/service/subscription"
	"github.com/pixmuse/billing/pkg/clock"
	"github.com/pixmuse/billing/pkg/logctx"
	"github.com/pixmuse/billing/pkg/types"
)

// Service routes verified Creem events to their handlers. Unknown event
// types are deliberately a no-op: the provider adds types over time and must
// always get a 200 for them.
type Service struct {
	subs   *subscription.Service
	ledger *ledger.Service
	orders *order.Service
	clk    clock.Clock
	log    *zap.SugaredLogger
}

func NewService(subs *subscription.Service, lg *ledger.Service, orders *order.Service, clk clock.Clock, log *zap.SugaredLogger) *Service {
	return &Service{subs: subs, ledger: lg, orders: orders, clk: clk, log: log}
}

// Handle dispatches one event. A nil return means the provider gets a 200.
func (s *Service) Handle(ctx context.Context, ev *Event) error {
	switch types.ParseEventKind(ev.EventType) {
	case types.EventKindCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, ev)
	case types.EventKindSubscriptionCreated, types.EventKindSubscriptionUpdated:
		return s.handleSubscriptionUpsert(ctx, ev)
	case types.EventKindSubscriptionCancelled:
		return s.handleSubscriptionCancelled(ctx, ev)
	case types.EventKindSubscriptionActive, types.EventKindSubscriptionPaid:
		return s.handleSubscriptionSettled(ctx, ev)
	case types.EventKindSubscriptionExpired:
		return s.handleSubscriptionExpired(ctx, ev)
	case types.EventKindPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, ev)
	case types.EventKindPaymentFailed:
		return s.handlePaymentFailed(ctx, ev)
	}
	logctx.FromCtx(ctx, s.log).Infow("unhandled_webhook_event_type", "event_type", ev.EventType)
	return nil
}
