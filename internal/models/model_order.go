package models

import "time"

type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order 订单审计记录，来自 checkout/payment 事件，尽力写入
type Order struct {
	ID              string      `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID          string      `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	CreemOrderID    string      `gorm:"column:creem_order_id;type:varchar(128);index" json:"creem_order_id"`
	CreemCheckoutID string      `gorm:"column:creem_checkout_id;type:varchar(128)" json:"creem_checkout_id"`
	ProductID       string      `gorm:"column:product_id;type:varchar(128)" json:"product_id"`
	Amount          int64       `gorm:"column:amount;type:bigint;not null;default:0" json:"amount"`
	Currency        string      `gorm:"column:currency;type:varchar(16);not null;default:'USD'" json:"currency"`
	Status          OrderStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	ErrorMessage    string      `gorm:"column:error_message;type:varchar(512)" json:"error_message"`
	PaidAt          *time.Time  `gorm:"column:paid_at;default:null" json:"paid_at"`
	FailedAt        *time.Time  `gorm:"column:failed_at;default:null" json:"failed_at"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// PaymentHistory 支付历史，payment.succeeded / payment.failed 各插一行
type PaymentHistory struct {
	ID           string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OrderID      string     `gorm:"column:order_id;type:varchar(128);not null;index" json:"order_id"`
	UserID       string     `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	ProductID    string     `gorm:"column:product_id;type:varchar(128)" json:"product_id"`
	Amount       int64      `gorm:"column:amount;type:bigint;not null;default:0" json:"amount"`
	Currency     string     `gorm:"column:currency;type:varchar(16);not null;default:'USD'" json:"currency"`
	Status       string     `gorm:"column:status;type:varchar(32);not null" json:"status"`
	ErrorMessage string     `gorm:"column:error_message;type:varchar(512)" json:"error_message"`
	PaymentDate  *time.Time `gorm:"column:payment_date;default:null" json:"payment_date"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (PaymentHistory) TableName() string { return "payment_history" }
