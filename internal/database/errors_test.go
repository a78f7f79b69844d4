package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/lib/pq"
)

func TestClassifySQLStates(t *testing.T) {
	cases := []struct {
		code       pq.ErrorCode
		kind       Kind
		constraint string
	}{
		{"23505", KindConstraint, "users_username_key"},
		{"23503", KindConstraint, "products_category_id_fkey"},
		{"40001", KindTransient, ""},
		{"40P01", KindTransient, ""},
		{"08006", KindTransient, ""},
		{"53300", KindTransient, ""},
		{"57P01", KindTransient, ""},
		{"57014", KindTimeout, ""},
		{"42P01", KindFatal, ""},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			err := Classify(context.Background(), "op", &pq.Error{Code: tc.code, Constraint: tc.constraint})
			if got := KindOf(err); got != tc.kind {
				t.Errorf("KindOf = %q, want %q", got, tc.kind)
			}
			if got := ConstraintOf(err); got != tc.constraint {
				t.Errorf("ConstraintOf = %q, want %q", got, tc.constraint)
			}
		})
	}
}

func TestClassifyConnectionAndContextFailures(t *testing.T) {
	if got := KindOf(Classify(context.Background(), "op", driver.ErrBadConn)); got != KindTransient {
		t.Errorf("bad conn kind = %q, want %q", got, KindTransient)
	}
	if !IsRetriable(Classify(context.Background(), "op", fmt.Errorf("dial: %w", driver.ErrBadConn))) {
		t.Error("wrapped bad conn should be retriable")
	}

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	if got := KindOf(Classify(expired, "op", errors.New("canceling query due to user request"))); got != KindTimeout {
		t.Errorf("cancelled context kind = %q, want %q", got, KindTimeout)
	}
	deadline := Classify(context.Background(), "op", context.DeadlineExceeded)
	if got := KindOf(deadline); got != KindTimeout {
		t.Errorf("deadline kind = %q, want %q", got, KindTimeout)
	}
	if IsRetriable(deadline) {
		t.Error("deadline should not be retriable")
	}
}

func TestClassifyPassThrough(t *testing.T) {
	if err := Classify(context.Background(), "op", nil); err != nil {
		t.Errorf("Classify(nil) = %v, want nil", err)
	}
	if err := Classify(context.Background(), "op", sql.ErrNoRows); err != sql.ErrNoRows {
		t.Errorf("Classify(ErrNoRows) = %v, want sql.ErrNoRows untouched", err)
	}

	first := Classify(context.Background(), "insert", driver.ErrBadConn)
	if again := Classify(context.Background(), "commit", first); again != first {
		t.Errorf("reclassified error = %v, want the original %v", again, first)
	}

	plain := errors.New("syntax")
	if got := KindOf(Classify(context.Background(), "op", plain)); got != KindFatal {
		t.Errorf("plain error kind = %q, want %q", got, KindFatal)
	}
	if got := KindOf(plain); got != "" {
		t.Errorf("unclassified KindOf = %q, want empty", got)
	}
}

func TestClassifyCommit(t *testing.T) {
	ctx := context.Background()

	lost := ClassifyCommit(ctx, io.ErrUnexpectedEOF)
	if got := KindOf(lost); got != KindIndeterminate {
		t.Errorf("lost commit kind = %q, want %q", got, KindIndeterminate)
	}
	if IsRetriable(lost) {
		t.Error("lost commit should not be retriable")
	}

	if got := KindOf(ClassifyCommit(ctx, &pq.Error{Code: "08006"})); got != KindIndeterminate {
		t.Errorf("dropped connection kind = %q, want %q", got, KindIndeterminate)
	}

	for _, code := range []pq.ErrorCode{"40001", "40P01"} {
		rolledBack := ClassifyCommit(ctx, &pq.Error{Code: code})
		if got := KindOf(rolledBack); got != KindTransient {
			t.Errorf("%s kind = %q, want %q", code, got, KindTransient)
		}
		if !IsRetriable(rolledBack) {
			t.Errorf("%s should be retriable", code)
		}
	}

	if got := KindOf(ClassifyCommit(ctx, &pq.Error{Code: "23505"})); got != KindConstraint {
		t.Errorf("unique violation kind = %q, want %q", got, KindConstraint)
	}
	if got := KindOf(ClassifyCommit(ctx, errors.New("boom"))); got != KindFatal {
		t.Errorf("plain error kind = %q, want %q", got, KindFatal)
	}
}

func TestConstraintViolation(t *testing.T) {
	err := ConstraintViolation("insert user", "users_username_key")
	if got := KindOf(err); got != KindConstraint {
		t.Errorf("KindOf = %q, want %q", got, KindConstraint)
	}
	if got := ConstraintOf(err); got != "users_username_key" {
		t.Errorf("ConstraintOf = %q, want users_username_key", got)
	}
	if IsRetriable(err) {
		t.Error("constraint violation should not be retriable")
	}
}
