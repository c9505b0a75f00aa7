package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSerializationFailureDetection(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped serialization failure", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isSerializationFailure(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestConcurrentModificationMatchable(t *testing.T) {
	// The exhausted-retries error must carry both the sentinel and the
	// last database error, as WithinTx joins them.
	joined := errors.Join(ErrConcurrentModification, &pgconn.PgError{Code: "40001"})

	if !errors.Is(joined, ErrConcurrentModification) {
		t.Fatal("expected errors.Is to match ErrConcurrentModification")
	}
	var pgErr *pgconn.PgError
	if !errors.As(joined, &pgErr) || pgErr.Code != "40001" {
		t.Fatal("expected the last database error to stay inspectable")
	}
}
