package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/pkg/enums"
)

// Order is the immutable priced snapshot produced by checkout. Only Status may
// change after creation.
type Order struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string            `gorm:"column:session_id;not null;index" json:"session_id"`
	Subtotal  decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	Shipping  decimal.Decimal   `gorm:"column:shipping;type:numeric(12,2);not null" json:"shipping"`
	Tax       decimal.Decimal   `gorm:"column:tax;type:numeric(12,2);not null" json:"tax"`
	Total     decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	Status    enums.OrderStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	Items     []OrderLineItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(_ *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderLineItem freezes the product name/price/image at the moment of purchase.
// It must never change even if the catalog product changes or is deleted, so
// ProductID is nullable rather than a foreign key.
type OrderLineItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"-"`
	ProductID   *uuid.UUID      `gorm:"column:product_id;type:uuid" json:"product_id,omitempty"`
	ProductName string          `gorm:"column:product_name;not null" json:"product_name"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null" json:"price"`
	Quantity    int             `gorm:"column:quantity;not null" json:"quantity"`
	Image       *string         `gorm:"column:image" json:"image,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"-"`
}

func (i *OrderLineItem) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
