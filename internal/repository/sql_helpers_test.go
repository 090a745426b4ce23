package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"pgx unique", &pgconn.PgError{Code: "23505"}, true},
		{"pgx wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pgx foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"lib/pq unique", &pq.Error{Code: "23505"}, true},
		{"lib/pq other", &pq.Error{Code: "42P01"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryArgsAndEscapeLike(t *testing.T) {
	args := &queryArgs{}
	if got := args.add("a") + args.add(2); got != "$1$2" {
		t.Errorf("placeholders = %q", got)
	}
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike() = %q", got)
	}
}
