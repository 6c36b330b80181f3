package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgalindo/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mgalindo/storefront-backend/pkg/errors"
	"github.com/mgalindo/storefront-backend/pkg/pagination"
)

// Service exposes read-only catalog operations to the HTTP layer.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, params pagination.Params) (*ProductList, error)
	Categories(ctx context.Context) ([]string, error)
}

// ProductList is one page of active products.
type ProductList struct {
	Products   []models.Product `json:"products"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type service struct {
	repo Repository
}

// NewService builds a catalog service backed by the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params) (*ProductList, error) {
	products, next, err := s.repo.ListActive(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	if products == nil {
		products = []models.Product{}
	}
	return &ProductList{Products: products, NextCursor: next}, nil
}

func (s *service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.DistinctCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return categories, nil
}
