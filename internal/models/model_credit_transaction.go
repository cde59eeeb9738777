package models

import (
	"time"

	"github.com/pixmuse/billing/pkg/types"
)

// CreditTransaction 积分流水，append-only。正数行同时是可消费的积分包
// （remaining_amount 记录剩余额度），负数行是扣减记录，零额行是冻结/解冻审计。
type CreditTransaction struct {
	ID              string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID          string                `gorm:"column:user_id;type:varchar(64);not null;index:idx_credit_tx_user_created,priority:1" json:"user_id"`
	TransactionType types.TransactionType `gorm:"column:transaction_type;type:varchar(64);not null" json:"transaction_type"`
	// Amount 本次变动额度：入账为正，扣减为负，冻结/解冻为 0
	Amount int64 `gorm:"column:amount;type:bigint;not null" json:"amount"`
	// RemainingAmount 包内剩余可消费额度，仅入账行有意义
	RemainingAmount int64 `gorm:"column:remaining_amount;type:bigint;not null;default:0" json:"remaining_amount"`
	// RelatedEntityID 关联实体（订阅ID或订单ID）
	RelatedEntityID string     `gorm:"column:related_entity_id;type:varchar(128)" json:"related_entity_id"`
	ExpiresAt       *time.Time `gorm:"column:expires_at;default:null" json:"expires_at"`

	// 冻结状态：升降级时旧订阅的积分包被冻结，到期事件解冻
	IsFrozen              bool       `gorm:"column:is_frozen;not null;default:false" json:"is_frozen"`
	FrozenUntil           *time.Time `gorm:"column:frozen_until;default:null" json:"frozen_until"`
	FrozenRemainingSecond *int64     `gorm:"column:frozen_remaining_seconds;default:null" json:"frozen_remaining_seconds"`
	OriginalExpiresAt     *time.Time `gorm:"column:original_expires_at;default:null" json:"original_expires_at"`
	FrozenReason          string     `gorm:"column:frozen_reason;type:varchar(255)" json:"frozen_reason"`

	Description string    `gorm:"column:description;type:varchar(512)" json:"description"`
	CreatedAt   time.Time `gorm:"index:idx_credit_tx_user_created,priority:2" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// EligibleAt reports whether the row is a package that can still be consumed
// at t: a grant with remaining credits, not frozen, not expired.
func (tx *CreditTransaction) EligibleAt(t time.Time) bool {
	if tx == nil || !tx.TransactionType.Grants() {
		return false
	}
	if tx.RemainingAmount <= 0 || tx.IsFrozen {
		return false
	}
	if tx.ExpiresAt != nil && !tx.ExpiresAt.After(t) {
		return false
	}
	return true
}

// SpendableAt returns the credits this row contributes to the balance at t.
func (tx *CreditTransaction) SpendableAt(t time.Time) int64 {
	if !tx.EligibleAt(t) {
		return 0
	}
	return tx.RemainingAmount
}
