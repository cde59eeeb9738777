package webhook

import (
	"context"
	"fmt"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/internal/app/service/order"
	"github.com/pixmuse/billing/internal/app/service/subscription"
	"github.com/pixmuse/billing/pkg/logctx"
	"github.com/pixmuse/billing/pkg/types"
)

// handleCheckoutCompleted splits a finished checkout into the credit-package
// and subscription flows on metadata.type.
func (s *Service) handleCheckoutCompleted(ctx context.Context, ev *Event) error {
	p, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("failed to parse checkout payload: %w", err)
	}
	if p.Metadata.Type == string(types.PurchaseTypeCreditPackage) {
		return s.handleCreditPackagePurchase(ctx, p)
	}
	return s.handleSubscriptionPurchase(ctx, p)
}

func (s *Service) handleCreditPackagePurchase(ctx context.Context, p *ObjectPayload) error {
	log := logctx.FromCtx(ctx, s.log)
	md := p.Metadata
	credits := md.CreditsInt()
	if md.UserID == "" || md.PackageCode == "" || credits <= 0 {
		log.Warnw("credit_package_missing_metadata",
			"user_id", md.UserID, "package_code", md.PackageCode, "credits", credits)
		return nil
	}

	orderID := p.OrderID
	if orderID == "" {
		orderID = p.ID
	}
	checkoutID := p.CheckoutID
	if checkoutID == "" {
		checkoutID = p.ID
	}
	s.orders.RecordCompleted(ctx, order.RecordParams{
		UserID:          md.UserID,
		CreemOrderID:    orderID,
		CreemCheckoutID: checkoutID,
		ProductID:       p.ProductID,
		Amount:          p.Amount,
		Currency:        p.Currency,
	})

	// credit packages stay valid for one year
	expiresAt := s.clk.Now().AddDate(1, 0, 0)
	_, err := s.ledger.Grant(ctx, ledger.GrantParams{
		UserID:          md.UserID,
		Amount:          credits,
		Type:            types.TransactionTypePurchase,
		RelatedEntityID: orderID,
		ExpiresAt:       &expiresAt,
		Description:     fmt.Sprintf("credit package purchase - %s", md.PackageCode),
	})
	if err != nil {
		return fmt.Errorf("failed to credit package purchase: %w", err)
	}
	log.Infow("credit_package_purchased", "user_id", md.UserID, "credits", credits, "order_id", orderID)
	return nil
}

func (s *Service) handleSubscriptionPurchase(ctx context.Context, p *ObjectPayload) error {
	md := p.Metadata
	params := subscription.PurchaseParams{
		UserID:              md.UserID,
		Tier:                types.PlanTier(md.PlanTier),
		Cycle:               types.BillingCycle(md.BillingCycle),
		Action:              types.SubscriptionAction(md.Action),
		CreemSubscriptionID: p.SubscriptionID,
		ProductID:           p.ProductID,
		OrderID:             p.OrderID,
		CheckoutID:          p.CheckoutID,
		AdjustmentMode:      md.AdjustmentMode,
		RemainingSeconds:    md.RemainingSecondsInt(),
		WasDowngraded:       md.WasDowngraded == "true",
	}
	if err := s.subs.ProcessPurchase(ctx, params); err != nil {
		return err
	}

	// order record is audit only, missing metadata means nothing was granted
	// and nothing should be recorded either
	if md.UserID == "" {
		return nil
	}
	orderID := p.OrderID
	if orderID == "" {
		orderID = p.ID
	}
	checkoutID := p.CheckoutID
	if checkoutID == "" {
		checkoutID = p.ID
	}
	s.orders.RecordCompleted(ctx, order.RecordParams{
		UserID:          md.UserID,
		CreemOrderID:    orderID,
		CreemCheckoutID: checkoutID,
		ProductID:       p.ProductID,
		Amount:          p.Amount,
		Currency:        p.Currency,
	})
	return nil
}

func (s *Service) handleSubscriptionUpsert(ctx context.Context, ev *Event) error {
	p, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}
	subID := p.SubscriptionID
	if subID == "" {
		subID = p.ID
	}
	return s.subs.UpsertFromProvider(ctx, subscription.ProviderSubscription{
		SubscriptionID: subID,
		CustomerID:     p.CustomerID,
		ProductID:      p.ProductID,
		Status:         p.Status,
		BillingCycle:   types.BillingCycle(p.BillingCycle),
		PeriodStart:    parseTime(p.CurrentPeriodStart),
		PeriodEnd:      parseTime(p.CurrentPeriodEnd),
	})
}

func (s *Service) handleSubscriptionCancelled(ctx context.Context, ev *Event) error {
	p, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("failed to parse cancellation payload: %w", err)
	}
	subID := p.SubscriptionID
	if subID == "" {
		subID = p.ID
	}
	return s.subs.Cancel(ctx, subID, parseTime(p.CancelledAt), parseTime(p.CurrentPeriodEnd))
}

// handleSubscriptionSettled covers subscription.active and subscription.paid,
// which Creem sends instead of checkout.completed on renewals. Only objects
// tagged as subscriptions in metadata are processed.
func (s *Service) handleSubscriptionSettled(ctx context.Context, ev *Event) error {
	p, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}
	if p.Metadata.Type != string(types.PurchaseTypeSubscription) {
		logctx.FromCtx(ctx, s.log).Infow("skipping_non_subscription_event",
			"event_type", ev.EventType, "metadata_type", p.Metadata.Type)
		return nil
	}
	if p.SubscriptionID == "" {
		p.SubscriptionID = p.ID
	}
	return s.handleSubscriptionPurchase(ctx, p)
}

func (s *Service) handleSubscriptionExpired(ctx context.Context, ev *Event) error {
	p, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("failed to parse expiry payload: %w", err)
	}
	subID := p.SubscriptionID
	if subID == "" {
		subID = p.ID
	}
	return s.subs.Expire(ctx, subID, p.CustomerID)
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, ev *Event) error {
	p, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("failed to parse payment payload: %w", err)
	}
	s.orders.MarkPaid(ctx, p.OrderID, p.CustomerID, p.ProductID, p.Amount, p.Currency, parseTime(p.PaidAt))
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, ev *Event) error {
	p, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("failed to parse payment payload: %w", err)
	}
	s.orders.MarkFailed(ctx, p.OrderID, p.CustomerID, p.ProductID, p.Amount, p.ErrorMessage, parseTime(p.FailedAt))
	return nil
}
