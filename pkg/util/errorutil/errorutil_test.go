package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestToDomainError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", NewValidationError("bad", nil), CodeValidation, http.StatusBadRequest},
		{"wrapped transition", fmt.Errorf("apply: %w", NewInvalidTransition("open", "completed")), CodeInvalidTransition, http.StatusConflict},
		{"no rows", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"persistence", NewPersistenceError("write conflict", errors.New("cas")), CodePersistence, http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToDomainError(tc.err)
			if got.Code != tc.code {
				t.Fatalf("code = %s, want %s", got.Code, tc.code)
			}
			if got.HTTPStatus != tc.status {
				t.Fatalf("status = %d, want %d", got.HTTPStatus, tc.status)
			}
		})
	}
	if ToDomainError(nil) != nil {
		t.Fatal("nil error should map to nil")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("link: %w", NewLinkageError("a", "b", errors.New("store down")))
	if !HasCode(err, CodeLinkage) {
		t.Fatal("expected linkage code through wrap")
	}
	if HasCode(err, CodeValidation) {
		t.Fatal("unexpected validation code")
	}
	if HasCode(errors.New("x"), CodeInternal) {
		t.Fatal("plain errors carry no code")
	}
}
