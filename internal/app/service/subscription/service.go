package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/clock"
	"github.com/pixmuse/billing/pkg/logctx"
	"github.com/pixmuse/billing/pkg/tool"
	"github.com/pixmuse/billing/pkg/types"
)

const yearlyBonusValidity = 365 * 24 * time.Hour

// Service drives the subscription lifecycle and orchestrates the credit
// grants that come with it.
type Service struct {
	store  Store
	ledger *ledger.Service
	clk    clock.Clock
	log    *zap.SugaredLogger
}

func NewService(store Store, lg *ledger.Service, clk clock.Clock, log *zap.SugaredLogger) *Service {
	return &Service{store: store, ledger: lg, clk: clk, log: log}
}

type CreateParams struct {
	UserID              string
	Tier                types.PlanTier
	Cycle               types.BillingCycle
	CreemSubscriptionID string
	ProductID           string
}

// Create inserts a new active subscription whose period runs one billing
// cycle from now.
func (s *Service) Create(ctx context.Context, p CreateParams) (string, error) {
	now := s.clk.Now()
	sub := &models.Subscription{
		ID:                 tool.GenerateUUIDV7(),
		UserID:             p.UserID,
		PlanTier:           p.Tier,
		BillingCycle:       p.Cycle,
		Status:             types.SubscriptionStatusActive,
		MonthlyCredits:     p.Tier.MonthlyCredits(),
		ProductID:          p.ProductID,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, p.Cycle.Days()),
	}
	if p.CreemSubscriptionID != "" {
		sub.CreemSubscriptionID = lo.ToPtr(p.CreemSubscriptionID)
	}
	if err := s.store.Insert(ctx, sub); err != nil {
		return "", fmt.Errorf("failed to create subscription: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription_created",
		"user_id", p.UserID, "subscription_id", sub.ID, "tier", p.Tier, "cycle", p.Cycle)
	return sub.ID, nil
}

// RefillCredits grants one cycle's worth of subscription credits. A renewal
// extends the expiry clock from the latest unexpired grant rather than from
// now, so renewing early never shortens what the user already paid for.
func (s *Service) RefillCredits(ctx context.Context, userID, subscriptionID string, credits int64, tier types.PlanTier, cycle types.BillingCycle, isRenewal bool) error {
	now := s.clk.Now()
	base := now
	txType := types.TransactionTypeSubscriptionGrant
	if isRenewal {
		txType = types.TransactionTypeRenewal
		latest, err := s.ledger.LatestUnexpiredGrantExpiry(ctx, userID, subscriptionID)
		if err != nil {
			return err
		}
		if latest != nil && latest.After(base) {
			base = *latest
		}
	}
	expiresAt := base.AddDate(0, 0, cycle.Days())

	desc := fmt.Sprintf("subscription refill - %s plan (%s)", tier, cycle)
	if isRenewal {
		desc = fmt.Sprintf("subscription renewal - %s plan (%s)", tier, cycle)
	}
	_, err := s.ledger.Grant(ctx, ledger.GrantParams{
		UserID:          userID,
		Amount:          credits,
		Type:            txType,
		RelatedEntityID: subscriptionID,
		ExpiresAt:       lo.ToPtr(expiresAt),
		Description:     desc,
	})
	if err != nil {
		return fmt.Errorf("failed to refill subscription credits: %w", err)
	}
	return nil
}

// PurchaseParams carries the checkout metadata for a subscription purchase.
type PurchaseParams struct {
	UserID              string
	Tier                types.PlanTier
	Cycle               types.BillingCycle
	Action              types.SubscriptionAction
	CreemSubscriptionID string
	ProductID           string
	OrderID             string
	CheckoutID          string
	AdjustmentMode      string
	RemainingSeconds    int64
	WasDowngraded       bool
}

// ProcessPurchase handles a completed subscription checkout: first purchase,
// renewal, or an immediate upgrade/downgrade. Incomplete metadata is treated
// as a no-op, not an error, so the provider is never retried for payloads we
// cannot act on.
func (s *Service) ProcessPurchase(ctx context.Context, p PurchaseParams) error {
	log := logctx.FromCtx(ctx, s.log)
	if p.UserID == "" || !p.Tier.Valid() || !p.Cycle.Valid() {
		log.Warnw("subscription_purchase_missing_metadata",
			"user_id", p.UserID, "tier", p.Tier, "cycle", p.Cycle)
		return nil
	}

	dup, err := s.ledger.RecentGrantExists(ctx, p.UserID, "", ledger.DuplicateRefillWindow)
	if err != nil {
		log.Errorw("duplicate_refill_check_failed", "user_id", p.UserID, "err", err)
		// keep going, the check is best-effort
	} else if dup {
		log.Infow("duplicate_refill_skipped", "user_id", p.UserID)
		return nil
	}

	monthlyCredits := p.Tier.MonthlyCredits()

	switch p.Action {
	case types.SubscriptionActionUpgrade, types.SubscriptionActionDowngrade:
		prepared, err := s.PrepareTierChange(ctx, p)
		if err != nil {
			return err
		}
		if err := s.grantCycleCredits(ctx, p.UserID, prepared.NewSubscriptionID, monthlyCredits, p.Tier, p.Cycle, false); err != nil {
			return err
		}
		s.FreezeTierChange(ctx, prepared, p.Action, p.Tier, p.Cycle)
		return nil

	case types.SubscriptionActionRenew:
		sub, err := s.resolveForRenewal(ctx, p)
		if err != nil {
			return err
		}
		if sub == nil {
			// provider says renew but we know nothing, fall through to purchase
			log.Warnw("renewal_without_subscription", "user_id", p.UserID)
			break
		}
		end := sub.CurrentPeriodEnd
		if now := s.clk.Now(); end.Before(now) {
			end = now
		}
		sub.CurrentPeriodEnd = end.AddDate(0, 0, p.Cycle.Days())
		if err := s.store.Update(ctx, sub); err != nil {
			return fmt.Errorf("failed to extend subscription period: %w", err)
		}
		if p.WasDowngraded {
			log.Infow("downgraded_renewal", "user_id", p.UserID, "subscription_id", sub.ID)
		}
		return s.RefillCredits(ctx, p.UserID, sub.ID, monthlyCredits, p.Tier, p.Cycle, true)
	}

	// first purchase
	subID, err := s.Create(ctx, CreateParams{
		UserID:              p.UserID,
		Tier:                p.Tier,
		Cycle:               p.Cycle,
		CreemSubscriptionID: p.CreemSubscriptionID,
		ProductID:           p.ProductID,
	})
	if err != nil {
		return err
	}
	return s.grantCycleCredits(ctx, p.UserID, subID, monthlyCredits, p.Tier, p.Cycle, false)
}

// grantCycleCredits grants the first cycle of a new (or replaced)
// subscription: one month of credits, plus the 20% bonus on yearly plans.
// The yearly bonus lands immediately and stays valid for a full year; the
// monthly allowance always carries a 30-day clock.
func (s *Service) grantCycleCredits(ctx context.Context, userID, subscriptionID string, monthlyCredits int64, tier types.PlanTier, cycle types.BillingCycle, isRenewal bool) error {
	if err := s.RefillCredits(ctx, userID, subscriptionID, monthlyCredits, tier, types.BillingCycleMonthly, isRenewal); err != nil {
		return err
	}
	if cycle != types.BillingCycleYearly {
		return nil
	}
	bonus := tier.YearlyBonusCredits()
	if bonus <= 0 {
		return nil
	}
	_, err := s.ledger.Grant(ctx, ledger.GrantParams{
		UserID:          userID,
		Amount:          bonus,
		Type:            types.TransactionTypeSubscriptionBonus,
		RelatedEntityID: subscriptionID,
		ExpiresAt:       lo.ToPtr(s.clk.Now().Add(yearlyBonusValidity)),
		Description:     fmt.Sprintf("yearly subscription bonus - %s plan (%d credits, valid for 1 year)", tier, bonus),
	})
	if err != nil {
		return fmt.Errorf("failed to grant yearly bonus: %w", err)
	}
	return nil
}

func (s *Service) resolveForRenewal(ctx context.Context, p PurchaseParams) (*models.Subscription, error) {
	if p.CreemSubscriptionID != "" {
		sub, err := s.store.ByProviderID(ctx, p.CreemSubscriptionID)
		if err != nil {
			return nil, err
		}
		if sub != nil && sub.Status == types.SubscriptionStatusActive {
			return sub, nil
		}
	}
	return s.store.ActiveByUser(ctx, p.UserID)
}

// ProviderSubscription is the subset of a Creem subscription object the
// lifecycle upsert cares about.
type ProviderSubscription struct {
	SubscriptionID string
	CustomerID     string
	ProductID      string
	Status         string
	BillingCycle   types.BillingCycle
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// UpsertFromProvider reconciles a subscription.created / subscription.updated
// notification into our row. On an update that moves the user to a higher
// tier, the monthly-credit difference is granted as upgrade compensation.
func (s *Service) UpsertFromProvider(ctx context.Context, p ProviderSubscription) error {
	log := logctx.FromCtx(ctx, s.log)
	if p.SubscriptionID == "" || p.CustomerID == "" {
		log.Warnw("provider_subscription_missing_fields",
			"subscription_id", p.SubscriptionID, "customer_id", p.CustomerID)
		return nil
	}

	cycle := p.BillingCycle
	if !cycle.Valid() {
		cycle = types.BillingCycleMonthly
	}
	tier := TierFromProductID(p.ProductID)

	existing, err := s.store.ByProviderID(ctx, p.SubscriptionID)
	if err != nil {
		return err
	}

	now := s.clk.Now()
	start := now
	if p.PeriodStart != nil {
		start = *p.PeriodStart
	}
	end := start.AddDate(0, 0, cycle.Days())
	if p.PeriodEnd != nil {
		end = *p.PeriodEnd
	}

	if existing == nil {
		sub := &models.Subscription{
			ID:                  tool.GenerateUUIDV7(),
			UserID:              p.CustomerID,
			PlanTier:            tier,
			BillingCycle:        cycle,
			Status:              providerStatus(p.Status),
			MonthlyCredits:      tier.MonthlyCredits(),
			CreemSubscriptionID: lo.ToPtr(p.SubscriptionID),
			ProductID:           p.ProductID,
			CurrentPeriodStart:  start,
			CurrentPeriodEnd:    end,
		}
		if err := s.store.Insert(ctx, sub); err != nil {
			return fmt.Errorf("failed to upsert provider subscription: %w", err)
		}
		log.Infow("subscription_upserted", "subscription_id", sub.ID, "creem_subscription_id", p.SubscriptionID)
		return nil
	}

	oldTier := existing.PlanTier
	existing.PlanTier = tier
	existing.BillingCycle = cycle
	existing.Status = providerStatus(p.Status)
	existing.MonthlyCredits = tier.MonthlyCredits()
	existing.ProductID = p.ProductID
	existing.CurrentPeriodStart = start
	existing.CurrentPeriodEnd = end
	if err := s.store.Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to upsert provider subscription: %w", err)
	}

	if tier.Valid() && oldTier.Valid() && tier.Rank() > oldTier.Rank() {
		delta := tier.MonthlyCredits() - oldTier.MonthlyCredits()
		if delta > 0 {
			_, err := s.ledger.Grant(ctx, ledger.GrantParams{
				UserID:          existing.UserID,
				Amount:          delta,
				Type:            types.TransactionTypeSubscriptionUpgrade,
				RelatedEntityID: existing.ID,
				ExpiresAt:       lo.ToPtr(now.Add(yearlyBonusValidity)),
				Description:     fmt.Sprintf("subscription upgrade compensation: %s -> %s", oldTier, tier),
			})
			if err != nil {
				return fmt.Errorf("failed to grant upgrade compensation: %w", err)
			}
		}
	}
	return nil
}

// Cancel marks the subscription cancelled. Entitlements run until the period
// end, which is left as is unless the provider sends a new one.
func (s *Service) Cancel(ctx context.Context, creemSubscriptionID string, cancelledAt, periodEnd *time.Time) error {
	log := logctx.FromCtx(ctx, s.log)
	sub, err := s.store.ByProviderID(ctx, creemSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		log.Warnw("cancel_unknown_subscription", "creem_subscription_id", creemSubscriptionID)
		return nil
	}
	sub.Status = types.SubscriptionStatusCancelled
	if cancelledAt != nil {
		sub.CancelledAt = cancelledAt
	} else {
		sub.CancelledAt = lo.ToPtr(s.clk.Now())
	}
	if periodEnd != nil {
		sub.CurrentPeriodEnd = *periodEnd
	}
	if err := s.store.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	log.Infow("subscription_cancelled", "subscription_id", sub.ID, "user_id", sub.UserID)
	return nil
}

// Expire marks the subscription expired and releases the user's frozen
// credit packages. Everything here is best-effort: the provider already
// considers the subscription over, so we never ask it to retry.
func (s *Service) Expire(ctx context.Context, creemSubscriptionID, userID string) error {
	log := logctx.FromCtx(ctx, s.log)

	sub, err := s.store.ByProviderID(ctx, creemSubscriptionID)
	if err != nil {
		log.Errorw("expire_lookup_failed", "creem_subscription_id", creemSubscriptionID, "err", err)
	}
	if sub != nil {
		sub.Status = types.SubscriptionStatusExpired
		if err := s.store.Update(ctx, sub); err != nil {
			log.Errorw("expire_status_update_failed", "subscription_id", sub.ID, "err", err)
		}
		if userID == "" {
			userID = sub.UserID
		}
	}
	if userID == "" {
		log.Warnw("expire_without_user", "creem_subscription_id", creemSubscriptionID)
		return nil
	}

	unfrozen, err := s.ledger.Unfreeze(ctx, userID, s.clk.Now())
	if err != nil {
		log.Errorw("unfreeze_sweep_failed", "user_id", userID, "err", err)
		return nil
	}
	log.Infow("subscription_expired", "user_id", userID,
		"creem_subscription_id", creemSubscriptionID, "unfrozen_packages", len(unfrozen))
	return nil
}

// ActiveByUser exposes the user's current subscription for read APIs.
func (s *Service) ActiveByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.store.ActiveByUser(ctx, userID)
}

// TierFromProductID maps a Creem product id onto a plan tier by substring,
// e.g. "prod_pro_monthly" -> pro. The "prod_" prefix is stripped first so it
// never collides with the "pro" tier. Unknown products yield an empty tier.
func TierFromProductID(productID string) types.PlanTier {
	id := strings.TrimPrefix(productID, "prod_")
	switch {
	case strings.Contains(id, "basic"):
		return types.PlanTierBasic
	case strings.Contains(id, "max"):
		return types.PlanTierMax
	case strings.Contains(id, "pro"):
		return types.PlanTierPro
	}
	return ""
}

func providerStatus(s string) types.SubscriptionStatus {
	switch types.SubscriptionStatus(s) {
	case types.SubscriptionStatusCancelled:
		return types.SubscriptionStatusCancelled
	case types.SubscriptionStatusExpired:
		return types.SubscriptionStatusExpired
	}
	return types.SubscriptionStatusActive
}
