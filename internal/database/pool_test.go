package database

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockPool(t *testing.T, acquireTimeout time.Duration) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPool(sqlx.NewDb(db, "postgres"), acquireTimeout), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

func TestWithTxCommits(t *testing.T) {
	pool, mock := newMockPool(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO widgets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := pool.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO widgets (id) VALUES ($1)", "w-1")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	expectationsMet(t, mock)
}

func TestWithTxCommitLostIsNotRetriable(t *testing.T) {
	pool, mock := newMockPool(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM widgets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(io.ErrUnexpectedEOF)

	err := pool.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM widgets WHERE id = $1", "w-1")
		return err
	})
	if err == nil {
		t.Fatal("WithTx succeeded although commit failed")
	}
	if kind := KindOf(err); kind != KindIndeterminate {
		t.Errorf("kind = %q, want %q", kind, KindIndeterminate)
	}
	if IsRetriable(err) {
		t.Error("a commit with unknown outcome must not be retriable")
	}
	expectationsMet(t, mock)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	pool, mock := newMockPool(t, time.Second)
	sentinel := errors.New("business rule")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := pool.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("WithTx = %v, want %v", err, sentinel)
	}
	expectationsMet(t, mock)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	pool, mock := newMockPool(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectRollback()

	mustPanic(t, "WithTx", func() {
		_ = pool.WithTx(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
			panic("boom")
		})
	})
	expectationsMet(t, mock)
}

func TestWithTxDeadlineRollsBack(t *testing.T) {
	pool, mock := newMockPool(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO widgets").
		WillDelayFor(500 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO widgets (id) VALUES ($1)", "w-1")
		return Classify(ctx, "insert widget", err)
	})
	if err == nil {
		t.Fatal("WithTx succeeded past its deadline")
	}
	if kind := KindOf(err); kind != KindTimeout {
		t.Errorf("kind = %q, want %q", kind, KindTimeout)
	}
	// database/sql may roll back from its own watcher goroutine.
	deadline := time.Now().Add(time.Second)
	for mock.ExpectationsWereMet() != nil {
		if time.Now().After(deadline) {
			t.Fatalf("rollback never happened: %v", mock.ExpectationsWereMet())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAcquireBlocksUntilReleaseOrTimeout(t *testing.T) {
	pool, _ := newMockPool(t, 50*time.Millisecond)
	pool.db.SetMaxOpenConns(1)

	held := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = pool.WithConn(context.Background(), func(ctx context.Context, conn *sqlx.Conn) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	start := time.Now()
	err := pool.WithConn(context.Background(), func(ctx context.Context, conn *sqlx.Conn) error {
		t.Error("connection must not be handed out while leased")
		return nil
	})
	if kind := KindOf(err); kind != KindPoolExhausted {
		t.Errorf("kind = %q, want %q (err %v)", kind, KindPoolExhausted, err)
	}
	if !IsRetriable(err) {
		t.Error("pool exhaustion should be retriable")
	}
	if waited := time.Since(start); waited < 40*time.Millisecond {
		t.Errorf("gave up after %v, want at least the acquire timeout", waited)
	}

	close(release)
	wg.Wait()

	called := false
	err = pool.WithConn(context.Background(), func(ctx context.Context, conn *sqlx.Conn) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("WithConn after release = called %v, err %v", called, err)
	}
}

func TestWaitingAcquireSucceedsWhenConnectionReturns(t *testing.T) {
	pool, _ := newMockPool(t, time.Second)
	pool.db.SetMaxOpenConns(1)

	held := make(chan struct{})
	go func() {
		_ = pool.WithConn(context.Background(), func(ctx context.Context, conn *sqlx.Conn) error {
			close(held)
			time.Sleep(30 * time.Millisecond)
			return nil
		})
	}()
	<-held

	err := pool.WithConn(context.Background(), func(ctx context.Context, conn *sqlx.Conn) error {
		return nil
	})
	if err != nil {
		t.Errorf("waiting WithConn: %v", err)
	}
}

func TestReleaseClosesOnLastReference(t *testing.T) {
	pool, mock := newMockPool(t, time.Second)
	mock.ExpectClose()

	pool.Retain()
	if refs := pool.Refs(); refs != 2 {
		t.Errorf("Refs = %d, want 2", refs)
	}

	if err := pool.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if mock.ExpectationsWereMet() == nil {
		t.Error("handle closed while still referenced")
	}

	if err := pool.Release(); err != nil {
		t.Fatalf("last Release: %v", err)
	}
	expectationsMet(t, mock)
	if err := pool.Release(); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Release after close = %v, want ErrPoolClosed", err)
	}

	err := pool.WithConn(context.Background(), func(ctx context.Context, conn *sqlx.Conn) error { return nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("WithConn after close = %v, want ErrPoolClosed", err)
	}
}

func TestRetainAfterReleasePanics(t *testing.T) {
	pool, mock := newMockPool(t, time.Second)
	mock.ExpectClose()
	if err := pool.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	mustPanic(t, "Retain", func() { pool.Retain() })
}
