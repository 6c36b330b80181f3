package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog listing with a finite stock pool. Checkout is the only
// writer of Stock; everything else treats products as read-mostly reference data.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name        string          `gorm:"column:name;not null" json:"name"`
	Description *string         `gorm:"column:description" json:"description,omitempty"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null" json:"price"`
	Stock       int             `gorm:"column:stock;not null;default:0" json:"stock"`
	Category    string          `gorm:"column:category;not null;default:''" json:"category"`
	Image       *string         `gorm:"column:image" json:"image,omitempty"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Product) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
