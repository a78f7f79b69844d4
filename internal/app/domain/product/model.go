package product

import (
	"math"
	"strings"
	"time"

	"github.com/R3E-Network/crud_service/internal/validator"
)

// CategoryConstraint is the foreign key from products to categories.
const CategoryConstraint = "products_category_id_fkey"

// MaxPrice is the exclusive upper bound imposed by NUMERIC(10,2).
const MaxPrice = 1e8

// Product is a priced item belonging to one category.
type Product struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Price      float64   `json:"price" db:"price"`
	CategoryID string    `json:"category_id" db:"category_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

func (p Product) SameContent(other Product) bool {
	return p.Name == other.Name && p.Price == other.Price && p.CategoryID == other.CategoryID
}

// Input is the creation payload.
type Input struct {
	ID         *string  `json:"id"`
	Name       *string  `json:"name"`
	Price      *float64 `json:"price"`
	CategoryID *string  `json:"category_id"`
}

func (in Input) Validate(v *validator.Validator) {
	if in.ID != nil {
		v.Check(validator.Matches(*in.ID, validator.IdentifierRX), "id", "must be 1-64 letters, digits, '-' or '_'")
	}
	if in.Name == nil {
		v.AddError("name", "must be provided")
	} else {
		checkName(v, *in.Name)
	}
	if in.Price == nil {
		v.AddError("price", "must be provided")
	} else {
		checkPrice(v, *in.Price)
	}
	if in.CategoryID == nil || strings.TrimSpace(*in.CategoryID) == "" {
		v.AddError("category_id", "must be provided")
	}
}

func (in Input) Product() Product {
	var p Product
	if in.ID != nil {
		p.ID = *in.ID
	}
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.CategoryID != nil {
		p.CategoryID = strings.TrimSpace(*in.CategoryID)
	}
	return p
}

// Patch is a partial update.
type Patch struct {
	Name       *string  `json:"name"`
	Price      *float64 `json:"price"`
	CategoryID *string  `json:"category_id"`
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.CategoryID == nil
}

func (p Patch) Validate(v *validator.Validator) {
	if p.Empty() {
		v.AddError("body", "must change at least one field")
		return
	}
	if p.Name != nil {
		checkName(v, *p.Name)
	}
	if p.Price != nil {
		checkPrice(v, *p.Price)
	}
	if p.CategoryID != nil {
		v.Check(strings.TrimSpace(*p.CategoryID) != "", "category_id", "must be provided")
	}
}

func (p Patch) Apply(prod *Product) {
	if p.Name != nil {
		prod.Name = strings.TrimSpace(*p.Name)
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.CategoryID != nil {
		prod.CategoryID = strings.TrimSpace(*p.CategoryID)
	}
}

func checkName(v *validator.Validator, name string) {
	name = strings.TrimSpace(name)
	v.Check(name != "", "name", "must be provided")
	v.Check(validator.MaxRunes(name, 100), "name", "must not be more than 100 characters")
}

func checkPrice(v *validator.Validator, price float64) {
	v.Check(price >= 0, "price", "must not be negative")
	v.Check(price < MaxPrice, "price", "must be less than 100000000")
	cents := price * 100
	v.Check(math.Abs(cents-math.Round(cents)) < 1e-6, "price", "must have at most two decimal places")
}
