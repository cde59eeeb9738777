package order

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/clock"
	"github.com/pixmuse/billing/pkg/logctx"
	"github.com/pixmuse/billing/pkg/tool"
)

// Service records orders and payment history. All writes here are audit
// trail: failures are logged and swallowed so they never fail the webhook.
type Service struct {
	store Store
	clk   clock.Clock
	log   *zap.SugaredLogger
}

func NewService(store Store, clk clock.Clock, log *zap.SugaredLogger) *Service {
	return &Service{store: store, clk: clk, log: log}
}

type RecordParams struct {
	UserID          string
	CreemOrderID    string
	CreemCheckoutID string
	ProductID       string
	Amount          int64
	Currency        string
}

// RecordCompleted writes a completed order row for a finished checkout.
func (s *Service) RecordCompleted(ctx context.Context, p RecordParams) {
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	o := &models.Order{
		ID:              tool.GenerateUUIDV7(),
		UserID:          p.UserID,
		CreemOrderID:    p.CreemOrderID,
		CreemCheckoutID: p.CreemCheckoutID,
		ProductID:       p.ProductID,
		Amount:          p.Amount,
		Currency:        currency,
		Status:          models.OrderStatusCompleted,
		CreatedAt:       s.clk.Now(),
	}
	if err := s.store.Insert(ctx, o); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("order_record_failed",
			"creem_order_id", p.CreemOrderID, "user_id", p.UserID, "err", err)
	}
}

// MarkPaid flips the order to paid and appends a success payment-history row.
func (s *Service) MarkPaid(ctx context.Context, creemOrderID, userID, productID string, amount int64, currency string, paidAt *time.Time) {
	log := logctx.FromCtx(ctx, s.log)
	if paidAt == nil {
		now := s.clk.Now()
		paidAt = &now
	}
	if o, err := s.store.ByCreemOrderID(ctx, creemOrderID); err != nil {
		log.Errorw("order_lookup_failed", "creem_order_id", creemOrderID, "err", err)
	} else if o != nil {
		o.Status = models.OrderStatusPaid
		o.PaidAt = paidAt
		if err := s.store.Update(ctx, o); err != nil {
			log.Errorw("order_mark_paid_failed", "creem_order_id", creemOrderID, "err", err)
		}
	}
	s.insertHistory(ctx, creemOrderID, userID, productID, amount, currency, "success", "", paidAt)
}

// MarkFailed flips the order to failed and appends a failed history row.
func (s *Service) MarkFailed(ctx context.Context, creemOrderID, userID, productID string, amount int64, errMsg string, failedAt *time.Time) {
	log := logctx.FromCtx(ctx, s.log)
	if failedAt == nil {
		now := s.clk.Now()
		failedAt = &now
	}
	if o, err := s.store.ByCreemOrderID(ctx, creemOrderID); err != nil {
		log.Errorw("order_lookup_failed", "creem_order_id", creemOrderID, "err", err)
	} else if o != nil {
		o.Status = models.OrderStatusFailed
		o.ErrorMessage = errMsg
		o.FailedAt = failedAt
		if err := s.store.Update(ctx, o); err != nil {
			log.Errorw("order_mark_failed_failed", "creem_order_id", creemOrderID, "err", err)
		}
	}
	s.insertHistory(ctx, creemOrderID, userID, productID, amount, "", "failed", errMsg, failedAt)
}

func (s *Service) insertHistory(ctx context.Context, orderID, userID, productID string, amount int64, currency, status, errMsg string, at *time.Time) {
	if currency == "" {
		currency = "USD"
	}
	h := &models.PaymentHistory{
		ID:           tool.GenerateUUIDV7(),
		OrderID:      orderID,
		UserID:       userID,
		ProductID:    productID,
		Amount:       amount,
		Currency:     currency,
		Status:       status,
		ErrorMessage: errMsg,
		PaymentDate:  at,
		CreatedAt:    s.clk.Now(),
	}
	if err := s.store.InsertHistory(ctx, h); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("payment_history_write_failed",
			"order_id", orderID, "status", status, "err", err)
	}
}
