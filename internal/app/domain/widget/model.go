package widget

import (
	"strings"
	"time"

	"github.com/R3E-Network/crud_service/internal/validator"
)

// Widget is the illustrative general-purpose resource.
type Widget struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Quantity    int64     `json:"quantity" db:"quantity"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SameContent compares the caller-controlled fields.
func (w Widget) SameContent(other Widget) bool {
	return w.Name == other.Name && w.Description == other.Description && w.Quantity == other.Quantity
}

// Input is the creation payload. Pointers distinguish an absent or null field
// from its zero value.
type Input struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Quantity    *int64  `json:"quantity"`
}

// Validate records every problem with the payload.
func (in Input) Validate(v *validator.Validator) {
	if in.ID != nil {
		v.Check(validator.Matches(*in.ID, validator.IdentifierRX), "id", "must be 1-64 letters, digits, '-' or '_'")
	}
	if in.Name == nil {
		v.AddError("name", "must be provided")
	} else {
		checkName(v, *in.Name)
	}
	if in.Description != nil {
		v.Check(validator.MaxRunes(*in.Description, 1000), "description", "must not be more than 1000 characters")
	}
	if in.Quantity != nil {
		v.Check(*in.Quantity >= 0, "quantity", "must not be negative")
	}
}

// Widget converts a validated payload.
func (in Input) Widget() Widget {
	var w Widget
	if in.ID != nil {
		w.ID = *in.ID
	}
	if in.Name != nil {
		w.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		w.Description = *in.Description
	}
	if in.Quantity != nil {
		w.Quantity = *in.Quantity
	}
	return w
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Quantity    *int64  `json:"quantity"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Quantity == nil
}

// Validate records problems with the supplied fields.
func (p Patch) Validate(v *validator.Validator) {
	if p.Empty() {
		v.AddError("body", "must change at least one field")
		return
	}
	if p.Name != nil {
		checkName(v, *p.Name)
	}
	if p.Description != nil {
		v.Check(validator.MaxRunes(*p.Description, 1000), "description", "must not be more than 1000 characters")
	}
	if p.Quantity != nil {
		v.Check(*p.Quantity >= 0, "quantity", "must not be negative")
	}
}

// Apply writes the patch onto w.
func (p Patch) Apply(w *Widget) {
	if p.Name != nil {
		w.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		w.Description = *p.Description
	}
	if p.Quantity != nil {
		w.Quantity = *p.Quantity
	}
}

func checkName(v *validator.Validator, name string) {
	name = strings.TrimSpace(name)
	v.Check(name != "", "name", "must be provided")
	v.Check(validator.MaxRunes(name, 100), "name", "must not be more than 100 characters")
}
