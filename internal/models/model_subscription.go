package models

import (
	"time"

	"github.com/pixmuse/billing/pkg/types"
)

// Subscription 用户订阅记录。一个用户同一时刻最多一条 active 记录，
// 升降级产生新行，旧行保留为历史（cancelled/expired）。
type Subscription struct {
	ID           string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID       string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	PlanTier     types.PlanTier           `gorm:"column:plan_tier;type:varchar(32);not null" json:"plan_tier"`
	BillingCycle types.BillingCycle       `gorm:"column:billing_cycle;type:varchar(32);not null" json:"billing_cycle"`
	Status       types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	// MonthlyCredits 每月积分额度快照，落库避免套餐表调整影响历史订阅
	MonthlyCredits      int64   `gorm:"column:monthly_credits;type:bigint;not null" json:"monthly_credits"`
	CreemSubscriptionID *string `gorm:"column:creem_subscription_id;type:varchar(128);index" json:"creem_subscription_id"`
	ProductID           string  `gorm:"column:product_id;type:varchar(128)" json:"product_id"`

	CurrentPeriodStart time.Time  `gorm:"column:current_period_start;not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `gorm:"column:current_period_end;not null" json:"current_period_end"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "user_subscriptions"
}

// ActiveAt reports whether the subscription grants entitlements at t.
func (s *Subscription) ActiveAt(t time.Time) bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		s.CurrentPeriodEnd.After(t)
}
