package types

// TransactionType 积分流水类型
type TransactionType string

const (
	// TransactionTypePurchase 积分包购买入账
	TransactionTypePurchase TransactionType = "purchase"
	// TransactionTypeSubscriptionGrant 订阅充值入账（首购/升降级）
	TransactionTypeSubscriptionGrant TransactionType = "subscription_grant"
	// TransactionTypeSubscriptionBonus 年付赠送积分（20%）
	TransactionTypeSubscriptionBonus TransactionType = "subscription_bonus"
	// TransactionTypeSubscriptionUpgrade 升级补偿积分
	TransactionTypeSubscriptionUpgrade TransactionType = "subscription_upgrade"
	// TransactionTypeRenewal 续费充值入账
	TransactionTypeRenewal TransactionType = "renewal"
	// TransactionTypeFreeze 冻结审计记录（零额）
	TransactionTypeFreeze TransactionType = "freeze"
	// TransactionTypeUnfreeze 解冻审计记录（零额）
	TransactionTypeUnfreeze TransactionType = "unfreeze"
	// TransactionTypeDeduction 消费扣减
	TransactionTypeDeduction TransactionType = "deduction"
)

// Grants reports whether rows of this type add spendable credits and should
// participate in FIFO selection and the duplicate-refill window.
func (t TransactionType) Grants() bool {
	switch t {
	case TransactionTypePurchase,
		TransactionTypeSubscriptionGrant,
		TransactionTypeSubscriptionBonus,
		TransactionTypeSubscriptionUpgrade,
		TransactionTypeRenewal:
		return true
	}
	return false
}

// SubscriptionGrant reports whether this type represents a subscription
// credit refill, the kind the idempotency guard watches for.
func (t TransactionType) SubscriptionGrant() bool {
	return t == TransactionTypeSubscriptionGrant || t == TransactionTypeRenewal
}
