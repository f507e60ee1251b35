package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"mentora/backend/internal/domain"
	"mentora/backend/internal/store"
)

func TestMapStoreError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if err := mapStoreError(nil); err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
	})

	t.Run("no rows becomes not found", func(t *testing.T) {
		if err := mapStoreError(sql.ErrNoRows); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
		}
	})

	t.Run("exclusion constraint becomes conflict", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"}
		if err := mapStoreError(pgErr); !errors.Is(err, store.ErrConflict) {
			t.Fatalf("err = %v, want %v", err, store.ErrConflict)
		}
	})

	t.Run("other exclusion constraints pass through", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23P01", ConstraintName: "something_else"}
		if err := mapStoreError(pgErr); errors.Is(err, store.ErrConflict) {
			t.Fatalf("unrelated constraint mapped to conflict")
		}
	})

	t.Run("connection failure becomes unavailable", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "08006"}
		if err := mapStoreError(pgErr); !errors.Is(err, store.ErrUnavailable) {
			t.Fatalf("err = %v, want %v", err, store.ErrUnavailable)
		}
	})

	t.Run("deadline becomes unavailable", func(t *testing.T) {
		err := mapStoreError(fmt.Errorf("query: %w", context.DeadlineExceeded))
		if !errors.Is(err, store.ErrUnavailable) {
			t.Fatalf("err = %v, want %v", err, store.ErrUnavailable)
		}
	})

	t.Run("sentinels pass through unwrapped", func(t *testing.T) {
		if err := mapStoreError(store.ErrConflict); !errors.Is(err, store.ErrConflict) {
			t.Fatalf("err = %v, want %v", err, store.ErrConflict)
		}
	})

	t.Run("state errors pass through", func(t *testing.T) {
		sErr := &domain.StateError{From: domain.StatusCancelled, To: domain.StatusConfirmed}
		err := mapStoreError(sErr)
		var got *domain.StateError
		if !errors.As(err, &got) {
			t.Fatalf("error type = %T, want *domain.StateError", err)
		}
	})
}
