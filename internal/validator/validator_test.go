package validator

import (
	"reflect"
	"testing"
)

func TestCheckKeepsFirstMessage(t *testing.T) {
	v := New()
	if !v.Valid() {
		t.Fatal("new validator should be valid")
	}

	v.Check(false, "name", "must be provided")
	v.Check(false, "name", "must not be more than 100 characters")
	v.Check(true, "email", "unused")

	if v.Valid() {
		t.Fatal("expected validator to be invalid")
	}
	want := map[string]string{"name": "must be provided"}
	if !reflect.DeepEqual(v.Errors, want) {
		t.Errorf("Errors = %v, want %v", v.Errors, want)
	}
}

func TestMatchers(t *testing.T) {
	cases := []struct {
		name string
		got  bool
		want bool
	}{
		{"email ok", Matches("test1@example.com", EmailRX), true},
		{"email bad", Matches("not-an-email", EmailRX), false},
		{"identifier ok", Matches("w_1-A", IdentifierRX), true},
		{"identifier space", Matches("has space", IdentifierRX), false},
		{"identifier empty", Matches("", IdentifierRX), false},
		{"runes within", MaxRunes("ünï", 3), true},
		{"runes over", MaxRunes("abcd", 3), false},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}
