package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/crud_service/internal/app/domain/category"
	"github.com/R3E-Network/crud_service/internal/app/domain/product"
	"github.com/R3E-Network/crud_service/internal/app/domain/user"
	"github.com/R3E-Network/crud_service/internal/app/domain/widget"
)

// ErrNotFound is returned by writes that target a missing row. Reads report
// absence through their found result instead.
var ErrNotFound = errors.New("record not found")

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// WidgetStore persists widgets.
//
// Create inserts w unless a row with the same id exists, in which case the
// stored row is returned with created=false. Get reports absence with
// found=false and a nil error.
type WidgetStore interface {
	CreateWidget(ctx context.Context, w widget.Widget) (stored widget.Widget, created bool, err error)
	GetWidget(ctx context.Context, id string) (w widget.Widget, found bool, err error)
	ListWidgets(ctx context.Context, page Page) ([]widget.Widget, error)
	CountWidgets(ctx context.Context) (int64, error)
	UpdateWidget(ctx context.Context, id string, patch widget.Patch) (widget.Widget, error)
	DeleteWidget(ctx context.Context, id string) error
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (stored user.User, created bool, err error)
	GetUser(ctx context.Context, id string) (u user.User, found bool, err error)
	ListUsers(ctx context.Context, page Page) ([]user.User, error)
	UpdateUser(ctx context.Context, id string, patch user.Patch) (user.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// CategoryStore persists product categories.
type CategoryStore interface {
	CreateCategory(ctx context.Context, c category.Category) (stored category.Category, created bool, err error)
	GetCategory(ctx context.Context, id string) (c category.Category, found bool, err error)
	ListCategories(ctx context.Context, page Page) ([]category.Category, error)
	UpdateCategory(ctx context.Context, id string, patch category.Patch) (category.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	CategoryID string
}

// ProductStore persists products.
type ProductStore interface {
	CreateProduct(ctx context.Context, p product.Product) (stored product.Product, created bool, err error)
	GetProduct(ctx context.Context, id string) (p product.Product, found bool, err error)
	ListProducts(ctx context.Context, filter ProductFilter, page Page) ([]product.Product, error)
	UpdateProduct(ctx context.Context, id string, patch product.Patch) (product.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}
