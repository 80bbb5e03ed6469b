package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
)

// Order is created exactly once per confirmed payment. The composite unique
// index on (payment_method, payment_transaction_id) is the second
// idempotency guard, independent of the webhook ledger: a provider's
// transaction identifier is the durable real-world proof of payment.
type Order struct {
	ID                   uint        `gorm:"primaryKey" json:"id"`
	UUID                 string      `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	UserID               *uint       `gorm:"index" json:"user_id,omitempty"` // nil for guest checkout
	Email                string      `gorm:"type:varchar(200);not null" json:"email" validate:"required,email"`
	Items                []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	TotalAmount          int64       `gorm:"not null" json:"total_amount" validate:"gte=0"` // minor units
	Currency             string      `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency" validate:"len=3"`
	Status               string      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status" validate:"oneof=pending processing shipped delivered"`
	PaymentMethod        string      `gorm:"type:varchar(20);not null;index:ux_orders_payment_txn,unique,priority:1" json:"payment_method"`
	PaymentTransactionID string      `gorm:"type:varchar(191);not null;index:ux_orders_payment_txn,unique,priority:2" json:"payment_transaction_id"`
	CreatedAt            time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem snapshots name and unit price at fulfillment time; they are
// never re-derived from the product row later.
type OrderItem struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderID     uint   `gorm:"not null;index" json:"order_id"`
	ProductID   uint   `gorm:"not null;index" json:"product_id"`
	ProductName string `gorm:"type:varchar(200);not null" json:"product_name"`
	Quantity    int    `gorm:"not null" json:"quantity"`
	UnitPrice   int64  `gorm:"not null" json:"unit_price"` // minor units
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == "" {
		o.UUID = uuid.New().String()
	}
	return nil
}

func (o *Order) Validate() error {
	v := validator.New()

	return v.Struct(o)
}
