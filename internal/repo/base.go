package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is the shared foundation for the catalog, cart and order
// repositories: it owns the GORM handle and context binding so the
// domain repositories only add queries.
type Base struct {
	db *gorm.DB
}

// NewBase wraps a GORM connection for embedding in a domain repository.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
