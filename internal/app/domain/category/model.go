package category

import (
	"strings"
	"time"

	"github.com/R3E-Network/crud_service/internal/validator"
)

// NameConstraint is the unique constraint guarding category names.
const NameConstraint = "categories_name_key"

// Category groups products.
type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (c Category) SameContent(other Category) bool {
	return c.Name == other.Name
}

// Input is the creation payload.
type Input struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`
}

func (in Input) Validate(v *validator.Validator) {
	if in.ID != nil {
		v.Check(validator.Matches(*in.ID, validator.IdentifierRX), "id", "must be 1-64 letters, digits, '-' or '_'")
	}
	if in.Name == nil {
		v.AddError("name", "must be provided")
		return
	}
	checkName(v, *in.Name)
}

func (in Input) Category() Category {
	var c Category
	if in.ID != nil {
		c.ID = *in.ID
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	return c
}

// Patch is a partial update.
type Patch struct {
	Name *string `json:"name"`
}

func (p Patch) Validate(v *validator.Validator) {
	if p.Name == nil {
		v.AddError("body", "must change at least one field")
		return
	}
	checkName(v, *p.Name)
}

func (p Patch) Apply(c *Category) {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
}

func checkName(v *validator.Validator, name string) {
	name = strings.TrimSpace(name)
	v.Check(name != "", "name", "must be provided")
	v.Check(validator.MaxRunes(name, 100), "name", "must not be more than 100 characters")
}
