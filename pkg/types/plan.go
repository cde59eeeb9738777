package types

type PlanTier string

const (
	PlanTierBasic PlanTier = "basic"
	PlanTierPro   PlanTier = "pro"
	PlanTierMax   PlanTier = "max"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// SubscriptionAction 订阅变更类型，由当前套餐与目标套餐推导
type SubscriptionAction string

const (
	SubscriptionActionPurchase  SubscriptionAction = "purchase"
	SubscriptionActionRenew     SubscriptionAction = "renew"
	SubscriptionActionUpgrade   SubscriptionAction = "upgrade"
	SubscriptionActionDowngrade SubscriptionAction = "downgrade"
	SubscriptionActionChange    SubscriptionAction = "change"
)

// planRank orders tiers for upgrade/downgrade decisions.
var planRank = map[PlanTier]int{
	PlanTierBasic: 1,
	PlanTierPro:   2,
	PlanTierMax:   3,
}

// monthlyCredits is the per-month credit allowance of each tier.
// Max is effectively unlimited.
var monthlyCredits = map[PlanTier]int64{
	PlanTierBasic: 100,
	PlanTierPro:   500,
	PlanTierMax:   999999,
}

var cycleDays = map[BillingCycle]int{
	BillingCycleMonthly: 30,
	BillingCycleYearly:  365,
}

func (t PlanTier) Valid() bool {
	_, ok := planRank[t]
	return ok
}

func (t PlanTier) Rank() int {
	return planRank[t]
}

func (t PlanTier) MonthlyCredits() int64 {
	return monthlyCredits[t]
}

// YearlyBonusCredits is the 20% bonus granted on a yearly purchase,
// on top of the 12 monthly allowances.
func (t PlanTier) YearlyBonusCredits() int64 {
	return monthlyCredits[t] * 12 / 5
}

func (c BillingCycle) Valid() bool {
	_, ok := cycleDays[c]
	return ok
}

func (c BillingCycle) Days() int {
	return cycleDays[c]
}

// DeterminePlanAction classifies a subscription change. No current plan means
// a first purchase; same tier and cycle means a renewal; a rank move is an
// upgrade or downgrade; same rank with a different cycle is a plain change.
func DeterminePlanAction(currentTier PlanTier, currentCycle BillingCycle, targetTier PlanTier, targetCycle BillingCycle) SubscriptionAction {
	if currentTier == "" || currentCycle == "" {
		return SubscriptionActionPurchase
	}
	if currentTier == targetTier && currentCycle == targetCycle {
		return SubscriptionActionRenew
	}
	switch {
	case targetTier.Rank() > currentTier.Rank():
		return SubscriptionActionUpgrade
	case targetTier.Rank() < currentTier.Rank():
		return SubscriptionActionDowngrade
	}
	return SubscriptionActionChange
}
