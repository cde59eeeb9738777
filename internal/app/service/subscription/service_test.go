package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/internal/app/service/subscription"
	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/internal/platform/memstore"
	"github.com/pixmuse/billing/pkg/clock"
	"github.com/pixmuse/billing/pkg/types"
)

type fixture struct {
	subs     *subscription.Service
	ledger   *ledger.Service
	subStore *memstore.Subscriptions
	ledStore *memstore.Ledger
	clk      *clock.Mock
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	ledStore := memstore.NewLedger()
	subStore := memstore.NewSubscriptions()
	clk := clock.NewMock(start)
	lg := ledger.NewService(ledStore, clk, log)
	return &fixture{
		subs:     subscription.NewService(subStore, lg, clk, log),
		ledger:   lg,
		subStore: subStore,
		ledStore: ledStore,
		clk:      clk,
	}
}

func activeSub(t *testing.T, f *fixture, userID string) *models.Subscription {
	t.Helper()
	sub, err := f.subs.ActiveByUser(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func TestProcessPurchaseFirstMonthly(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	err := f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID:              "u1",
		Tier:                types.PlanTierPro,
		Cycle:               types.BillingCycleMonthly,
		Action:              types.SubscriptionActionPurchase,
		CreemSubscriptionID: "creem_sub_1",
		ProductID:           "prod_pro_monthly",
	})
	require.NoError(t, err)

	sub := activeSub(t, f, "u1")
	assert.Equal(t, types.PlanTierPro, sub.PlanTier)
	assert.Equal(t, types.BillingCycleMonthly, sub.BillingCycle)
	assert.EqualValues(t, 500, sub.MonthlyCredits)
	assert.True(t, sub.CurrentPeriodEnd.Equal(now.AddDate(0, 0, 30)))

	grants := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionGrant)
	require.Len(t, grants, 1)
	assert.EqualValues(t, 500, grants[0].Amount)
	assert.Equal(t, sub.ID, grants[0].RelatedEntityID)
	require.NotNil(t, grants[0].ExpiresAt)
	assert.True(t, grants[0].ExpiresAt.Equal(now.AddDate(0, 0, 30)))
}

func TestProcessPurchaseYearlyGrantsBonus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	err := f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID:    "u1",
		Tier:      types.PlanTierBasic,
		Cycle:     types.BillingCycleYearly,
		Action:    types.SubscriptionActionPurchase,
		ProductID: "prod_basic_yearly",
	})
	require.NoError(t, err)

	sub := activeSub(t, f, "u1")
	assert.True(t, sub.CurrentPeriodEnd.Equal(now.AddDate(0, 0, 365)))

	// monthly allowance carries the 30-day clock even on yearly plans
	grants := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionGrant)
	require.Len(t, grants, 1)
	assert.EqualValues(t, 100, grants[0].Amount)
	assert.True(t, grants[0].ExpiresAt.Equal(now.AddDate(0, 0, 30)))

	bonuses := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionBonus)
	require.Len(t, bonuses, 1)
	assert.EqualValues(t, 240, bonuses[0].Amount)
	assert.True(t, bonuses[0].ExpiresAt.Equal(now.Add(365*24*time.Hour)))

	balance, err := f.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 340, balance)
}

func TestProcessPurchaseMissingMetadataIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())

	err := f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
	})
	require.NoError(t, err)
	err = f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: "platinum", Cycle: types.BillingCycleMonthly,
	})
	require.NoError(t, err)

	assert.Empty(t, f.subStore.Rows())
	assert.Empty(t, f.ledStore.Rows())
}

func TestProcessPurchaseDuplicateRefillSkipped(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	p := subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_1",
	}
	require.NoError(t, f.subs.ProcessPurchase(ctx, p))

	// provider retry 30 seconds later lands inside the duplicate window
	f.clk.Advance(30 * time.Second)
	require.NoError(t, f.subs.ProcessPurchase(ctx, p))

	assert.Len(t, f.subStore.Rows(), 1)
	assert.Len(t, f.ledStore.RowsOfType(types.TransactionTypeSubscriptionGrant), 1)
}

func TestProcessPurchaseRenewalExtends(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_1",
	}))
	firstEnd := activeSub(t, f, "u1").CurrentPeriodEnd

	// renew a day before the period ends
	f.clk.Advance(29 * 24 * time.Hour)
	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionRenew, CreemSubscriptionID: "creem_sub_1",
	}))

	sub := activeSub(t, f, "u1")
	assert.True(t, sub.CurrentPeriodEnd.Equal(firstEnd.AddDate(0, 0, 30)),
		"early renewal extends from the period end, not from now")

	renewals := f.ledStore.RowsOfType(types.TransactionTypeRenewal)
	require.Len(t, renewals, 1)
	assert.EqualValues(t, 500, renewals[0].Amount)
	require.NotNil(t, renewals[0].ExpiresAt)
	// expiry stacks on top of the still-valid first grant
	assert.True(t, renewals[0].ExpiresAt.Equal(firstEnd.AddDate(0, 0, 30)))

	balance, err := f.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, balance)
}

func TestRenewalIgnoresYearlyBonusExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierBasic, Cycle: types.BillingCycleYearly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_1",
	}))
	bonuses := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionBonus)
	require.Len(t, bonuses, 1)

	// the 30-day refill has lapsed but the 1-year bonus is still live
	f.clk.Advance(31 * 24 * time.Hour)
	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierBasic, Cycle: types.BillingCycleYearly,
		Action: types.SubscriptionActionRenew, CreemSubscriptionID: "creem_sub_1",
	}))

	renewals := f.ledStore.RowsOfType(types.TransactionTypeRenewal)
	require.Len(t, renewals, 1)
	require.NotNil(t, renewals[0].ExpiresAt)
	assert.True(t, renewals[0].ExpiresAt.Equal(f.clk.Now().AddDate(0, 0, 365)),
		"renewal extends from the subscription's own refills, not from the bonus")
	assert.False(t, renewals[0].ExpiresAt.Equal(bonuses[0].ExpiresAt.AddDate(0, 0, 365)))
}

func TestProcessPurchaseLapsedRenewalExtendsFromNow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierBasic, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_1",
	}))

	// period lapsed ten days ago
	f.clk.Advance(40 * 24 * time.Hour)
	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierBasic, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionRenew, CreemSubscriptionID: "creem_sub_1",
	}))

	sub := activeSub(t, f, "u1")
	assert.True(t, sub.CurrentPeriodEnd.Equal(f.clk.Now().AddDate(0, 0, 30)))
}

func TestProcessPurchaseUpgradeTwoPhase(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierBasic, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_old",
	}))
	old := activeSub(t, f, "u1")

	f.clk.Advance(10 * 24 * time.Hour)
	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionUpgrade, CreemSubscriptionID: "creem_sub_new",
	}))

	oldAfter, err := f.subStore.ByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, oldAfter.Status)
	require.NotNil(t, oldAfter.CancelledAt)

	newSub := activeSub(t, f, "u1")
	assert.NotEqual(t, old.ID, newSub.ID)
	assert.Equal(t, types.PlanTierPro, newSub.PlanTier)
	newEnd := f.clk.Now().AddDate(0, 0, 30)
	assert.True(t, newSub.CurrentPeriodEnd.Equal(newEnd))

	// new cycle credits landed before the old package was frozen
	grants := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionGrant)
	require.Len(t, grants, 2)
	var oldPkg, newPkg *models.CreditTransaction
	for _, g := range grants {
		switch g.RelatedEntityID {
		case old.ID:
			oldPkg = g
		case newSub.ID:
			newPkg = g
		}
	}
	require.NotNil(t, oldPkg)
	require.NotNil(t, newPkg)

	assert.EqualValues(t, 500, newPkg.Amount)
	assert.False(t, newPkg.IsFrozen)

	assert.True(t, oldPkg.IsFrozen)
	require.NotNil(t, oldPkg.FrozenUntil)
	assert.True(t, oldPkg.FrozenUntil.Equal(newEnd))
	require.NotNil(t, oldPkg.FrozenRemainingSecond)
	// 20 days were left on the old package's 30-day clock
	assert.EqualValues(t, int64((20*24*time.Hour)/time.Second), *oldPkg.FrozenRemainingSecond)

	require.Len(t, f.ledStore.RowsOfType(types.TransactionTypeFreeze), 1)

	balance, err := f.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 500, balance, "only the new cycle is spendable")
}

func TestProcessPurchaseDowngradeFreezesOldPackage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_old",
	}))
	old := activeSub(t, f, "u1")

	f.clk.Advance(6 * time.Minute)
	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierBasic, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionDowngrade, CreemSubscriptionID: "creem_sub_new",
	}))

	newSub := activeSub(t, f, "u1")
	assert.Equal(t, types.PlanTierBasic, newSub.PlanTier)

	grants := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionGrant)
	require.Len(t, grants, 2)
	for _, g := range grants {
		if g.RelatedEntityID == old.ID {
			assert.True(t, g.IsFrozen, "the pro package is parked, not burned")
		} else {
			assert.EqualValues(t, 100, g.Amount)
		}
	}
}

// flakyLedgerStore fails row updates on demand so the freeze phase of a
// tier change can be made to fail while grants still land.
type flakyLedgerStore struct {
	*memstore.Ledger
	failUpdates bool
}

func (s *flakyLedgerStore) Update(ctx context.Context, tx *models.CreditTransaction) error {
	if s.failUpdates {
		return errors.New("update rejected")
	}
	return s.Ledger.Update(ctx, tx)
}

func TestDowngradeSurvivesFreezeFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	log := zap.NewNop().Sugar()
	clk := clock.NewMock(now)
	ledStore := &flakyLedgerStore{Ledger: memstore.NewLedger()}
	subStore := memstore.NewSubscriptions()
	lg := ledger.NewService(ledStore, clk, log)
	subs := subscription.NewService(subStore, lg, clk, log)

	require.NoError(t, subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_old",
	}))
	old, err := subs.ActiveByUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, old)

	clk.Advance(6 * time.Minute)
	ledStore.failUpdates = true
	require.NoError(t, subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierBasic, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionDowngrade, CreemSubscriptionID: "creem_sub_new",
	}), "a failed freeze never fails the booked tier change")

	newSub, err := subs.ActiveByUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, newSub)
	assert.Equal(t, types.PlanTierBasic, newSub.PlanTier)

	grants := ledStore.RowsOfType(types.TransactionTypeSubscriptionGrant)
	require.Len(t, grants, 2)
	for _, g := range grants {
		assert.False(t, g.IsFrozen, "the freeze never landed")
		if g.RelatedEntityID == newSub.ID {
			assert.EqualValues(t, 100, g.Amount)
		}
	}
}

func TestUpgradeWithoutActiveSubscriptionFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())

	err := f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionUpgrade,
	})
	assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)
}

func TestUpsertFromProviderInsertAndUpgradeCompensation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	end := now.AddDate(0, 0, 30)
	require.NoError(t, f.subs.UpsertFromProvider(ctx, subscription.ProviderSubscription{
		SubscriptionID: "creem_sub_1",
		CustomerID:     "u1",
		ProductID:      "prod_basic_monthly",
		Status:         "active",
		BillingCycle:   types.BillingCycleMonthly,
		PeriodStart:    lo.ToPtr(now),
		PeriodEnd:      lo.ToPtr(end),
	}))

	sub := activeSub(t, f, "u1")
	assert.Equal(t, types.PlanTierBasic, sub.PlanTier)
	assert.True(t, sub.CurrentPeriodEnd.Equal(end))
	assert.Empty(t, f.ledStore.Rows(), "plain upsert moves no credits")

	// same provider subscription comes back on a higher tier
	require.NoError(t, f.subs.UpsertFromProvider(ctx, subscription.ProviderSubscription{
		SubscriptionID: "creem_sub_1",
		CustomerID:     "u1",
		ProductID:      "prod_pro_monthly",
		Status:         "active",
		BillingCycle:   types.BillingCycleMonthly,
	}))

	sub = activeSub(t, f, "u1")
	assert.Equal(t, types.PlanTierPro, sub.PlanTier)
	assert.EqualValues(t, 500, sub.MonthlyCredits)

	comp := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionUpgrade)
	require.Len(t, comp, 1)
	assert.EqualValues(t, 400, comp[0].Amount)
	assert.Equal(t, sub.ID, comp[0].RelatedEntityID)
}

func TestUpsertFromProviderMissingFieldsIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())

	require.NoError(t, f.subs.UpsertFromProvider(ctx, subscription.ProviderSubscription{
		SubscriptionID: "", CustomerID: "u1",
	}))
	require.NoError(t, f.subs.UpsertFromProvider(ctx, subscription.ProviderSubscription{
		SubscriptionID: "creem_sub_1", CustomerID: "",
	}))
	assert.Empty(t, f.subStore.Rows())
}

func TestCancelKeepsPeriodEnd(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_1",
	}))
	before := activeSub(t, f, "u1")

	cancelledAt := now.Add(5 * 24 * time.Hour)
	require.NoError(t, f.subs.Cancel(ctx, "creem_sub_1", lo.ToPtr(cancelledAt), nil))

	after, err := f.subStore.ByID(ctx, before.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, after.Status)
	require.NotNil(t, after.CancelledAt)
	assert.True(t, after.CancelledAt.Equal(cancelledAt))
	assert.True(t, after.CurrentPeriodEnd.Equal(before.CurrentPeriodEnd),
		"entitlements run until the period end")
}

func TestCancelUnknownSubscriptionIsNoop(t *testing.T) {
	f := newFixture(t, time.Now())
	require.NoError(t, f.subs.Cancel(context.Background(), "creem_sub_missing", nil, nil))
}

func TestExpireUnfreezesPackages(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierPro, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionPurchase, CreemSubscriptionID: "creem_sub_old",
	}))
	f.clk.Advance(6 * time.Minute)
	require.NoError(t, f.subs.ProcessPurchase(ctx, subscription.PurchaseParams{
		UserID: "u1", Tier: types.PlanTierBasic, Cycle: types.BillingCycleMonthly,
		Action: types.SubscriptionActionDowngrade, CreemSubscriptionID: "creem_sub_new",
	}))

	// the basic period runs out, Creem reports the subscription expired
	f.clk.Advance(31 * 24 * time.Hour)
	require.NoError(t, f.subs.Expire(ctx, "creem_sub_new", ""))

	var expired bool
	for _, row := range f.subStore.Rows() {
		if row.CreemSubscriptionID != nil && *row.CreemSubscriptionID == "creem_sub_new" {
			expired = row.Status == types.SubscriptionStatusExpired
		}
	}
	assert.True(t, expired)

	for _, row := range f.ledStore.Rows() {
		assert.False(t, row.IsFrozen, "expiry releases every frozen package")
	}
	require.Len(t, f.ledStore.RowsOfType(types.TransactionTypeUnfreeze), 1)
}

func TestTierFromProductID(t *testing.T) {
	assert.Equal(t, types.PlanTierBasic, subscription.TierFromProductID("prod_basic_monthly"))
	assert.Equal(t, types.PlanTierPro, subscription.TierFromProductID("prod_pro_yearly"))
	assert.Equal(t, types.PlanTierMax, subscription.TierFromProductID("prod_max_monthly"))
	assert.Equal(t, types.PlanTier(""), subscription.TierFromProductID("prod_mystery"))
}
