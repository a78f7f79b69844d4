package user

import (
	"strings"
	"time"

	"github.com/R3E-Network/crud_service/internal/validator"
)

// UsernameConstraint is the unique constraint guarding usernames.
const UsernameConstraint = "users_username_key"

// User is an account holder.
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SameContent compares the caller-controlled fields.
func (u User) SameContent(other User) bool {
	return u.Username == other.Username && u.Email == other.Email
}

// Input is the creation payload.
type Input struct {
	ID       *string `json:"id"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

func (in Input) Validate(v *validator.Validator) {
	if in.ID != nil {
		v.Check(validator.Matches(*in.ID, validator.IdentifierRX), "id", "must be 1-64 letters, digits, '-' or '_'")
	}
	if in.Username == nil {
		v.AddError("username", "must be provided")
	} else {
		checkUsername(v, *in.Username)
	}
	if in.Email == nil {
		v.AddError("email", "must be provided")
	} else {
		checkEmail(v, *in.Email)
	}
}

func (in Input) User() User {
	var u User
	if in.ID != nil {
		u.ID = *in.ID
	}
	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		u.Email = strings.TrimSpace(*in.Email)
	}
	return u
}

// Patch is a partial update.
type Patch struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

func (p Patch) Empty() bool {
	return p.Username == nil && p.Email == nil
}

func (p Patch) Validate(v *validator.Validator) {
	if p.Empty() {
		v.AddError("body", "must change at least one field")
		return
	}
	if p.Username != nil {
		checkUsername(v, *p.Username)
	}
	if p.Email != nil {
		checkEmail(v, *p.Email)
	}
}

func (p Patch) Apply(u *User) {
	if p.Username != nil {
		u.Username = strings.TrimSpace(*p.Username)
	}
	if p.Email != nil {
		u.Email = strings.TrimSpace(*p.Email)
	}
}

func checkUsername(v *validator.Validator, username string) {
	username = strings.TrimSpace(username)
	v.Check(username != "", "username", "must be provided")
	v.Check(validator.MaxRunes(username, 50), "username", "must not be more than 50 characters")
}

func checkEmail(v *validator.Validator, email string) {
	email = strings.TrimSpace(email)
	v.Check(email != "", "email", "must be provided")
	v.Check(validator.MaxRunes(email, 100), "email", "must not be more than 100 characters")
	v.Check(validator.Matches(email, validator.EmailRX), "email", "must be a valid email address")
}
