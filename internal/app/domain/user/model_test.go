package user

import (
	"reflect"
	"testing"

	"github.com/R3E-Network/crud_service/internal/validator"
)

func ptr[T any](v T) *T { return &v }

func TestInputValidation(t *testing.T) {
	cases := []struct {
		name  string
		input Input
		want  map[string]string
	}{
		{"empty username", Input{Username: ptr(""), Email: ptr("test1@example.com")}, map[string]string{"username": "must be provided"}},
		{"bad email", Input{Username: ptr("testuser1"), Email: ptr("nope")}, map[string]string{"email": "must be a valid email address"}},
		{"valid", Input{Username: ptr("testuser1"), Email: ptr("test1@example.com")}, map[string]string{}},
	}
	for _, tc := range cases {
		v := validator.New()
		tc.input.Validate(v)
		if !reflect.DeepEqual(v.Errors, tc.want) {
			t.Errorf("%s: errors = %v, want %v", tc.name, v.Errors, tc.want)
		}
	}
}

func TestPatchApply(t *testing.T) {
	u := User{ID: "u-1", Username: "testuser1", Email: "test1@example.com"}
	Patch{Username: ptr("updatedTestUser"), Email: ptr(" updated@test.com ")}.Apply(&u)
	if u.Username != "updatedTestUser" {
		t.Errorf("Username = %q, want updatedTestUser", u.Username)
	}
	if u.Email != "updated@test.com" {
		t.Errorf("Email = %q, want updated@test.com", u.Email)
	}
}
