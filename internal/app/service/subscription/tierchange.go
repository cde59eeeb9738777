package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/pkg/logctx"
	"github.com/pixmuse/billing/pkg/types"
)

// Tier changes run in two phases. Prepare cancels the old subscription,
// creates the new one and notes which credit package would be frozen, but
// touches no credits. The freeze runs only after the new cycle's grants have
// landed, so a crash in between leaves the user with credits rather than
// without them.

// TierChangePrepared carries Prepare's results into the freeze phase.
type TierChangePrepared struct {
	UserID            string
	OldSubscriptionID string
	NewSubscriptionID string
	NewPeriodEnd      time.Time
	// PackageID is the FIFO candidate found during prepare, "" when the old
	// subscription has no freezable package.
	PackageID string
}

// PrepareTierChange is phase one of an immediate upgrade/downgrade.
func (s *Service) PrepareTierChange(ctx context.Context, p PurchaseParams) (*TierChangePrepared, error) {
	log := logctx.FromCtx(ctx, s.log)

	old, err := s.store.ActiveByUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrNoActiveSubscription
	}

	now := s.clk.Now()
	old.Status = types.SubscriptionStatusCancelled
	old.CancelledAt = lo.ToPtr(now)
	if p.RemainingSeconds > 0 {
		// keep the unused time visible on the superseded row
		log.Infow("tier_change_remaining_time", "subscription_id", old.ID, "remaining_seconds", p.RemainingSeconds)
	}
	if err := s.store.Update(ctx, old); err != nil {
		return nil, fmt.Errorf("failed to cancel old subscription: %w", err)
	}

	newID, err := s.Create(ctx, CreateParams{
		UserID:              p.UserID,
		Tier:                p.Tier,
		Cycle:               p.Cycle,
		CreemSubscriptionID: p.CreemSubscriptionID,
		ProductID:           p.ProductID,
	})
	if err != nil {
		return nil, err
	}
	created, err := s.store.ByID(ctx, newID)
	if err != nil {
		return nil, err
	}

	pkgID, err := s.ledger.OldestEligiblePackageID(ctx, p.UserID, old.ID)
	if err != nil {
		return nil, err
	}

	log.Infow("tier_change_prepared",
		"user_id", p.UserID, "action", p.Action,
		"old_subscription_id", old.ID, "new_subscription_id", newID, "package_id", pkgID)
	return &TierChangePrepared{
		UserID:            p.UserID,
		OldSubscriptionID: old.ID,
		NewSubscriptionID: newID,
		NewPeriodEnd:      created.CurrentPeriodEnd,
		PackageID:         pkgID,
	}, nil
}

// FreezeTierChange is phase two: freeze the old subscription's oldest
// package until the new subscription's period ends. No package means the
// change simply proceeds without a freeze. A failed freeze is logged and
// swallowed: the new cycle's credits are already granted and the provider's
// retry would be dropped by the duplicate window, so failing here would only
// turn a booked tier change into an error response.
func (s *Service) FreezeTierChange(ctx context.Context, prepared *TierChangePrepared, action types.SubscriptionAction, tier types.PlanTier, cycle types.BillingCycle) *ledger.FrozenPackage {
	if prepared == nil || prepared.PackageID == "" {
		return nil
	}
	log := logctx.FromCtx(ctx, s.log)
	reason := fmt.Sprintf("%s to %s (%s)", action, tier, cycle)
	frozen, err := s.ledger.FreezeOldest(ctx, prepared.UserID, prepared.OldSubscriptionID, prepared.NewPeriodEnd, reason)
	if err != nil {
		log.Errorw("tier_change_freeze_failed",
			"user_id", prepared.UserID, "package_id", prepared.PackageID, "err", err)
		return nil
	}
	if frozen == nil {
		log.Infow("tier_change_nothing_to_freeze", "user_id", prepared.UserID)
	}
	return frozen
}
