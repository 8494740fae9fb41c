package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"usdc-vault-custody/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func setupMockDB(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	service := newService(sqlx.NewDb(mockDB, "sqlmock"), "sqlmock")
	t.Cleanup(service.Close)
	return service, mock
}

func TestWithTx_RetriesSerializationFailure(t *testing.T) {
	service, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE profiles").WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE profiles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := service.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		attempts++
		_, err := tx.Exec("UPDATE profiles SET balance = 1")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestWithTx_DoesNotRetryOtherErrors(t *testing.T) {
	service, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := service.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		attempts++
		return store.ErrInsufficientBalance
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected a single attempt, got %d", attempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestWithTx_GivesUpAfterMaxAttempts(t *testing.T) {
	service, mock := setupMockDB(t)

	for i := 0; i < maxTxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	attempts := 0
	err := service.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		attempts++
		return fmt.Errorf("update balance: %w", store.ErrConcurrentModification)
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification after exhausting retries, got %v", err)
	}
	if attempts != maxTxAttempts {
		t.Errorf("Expected %d attempts, got %d", maxTxAttempts, attempts)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		unique    bool
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, true, false},
		{"deadlock", &pq.Error{Code: "40P01"}, true, false},
		{"postgres unique", &pq.Error{Code: "23505"}, false, true},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true, false},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, false, true},
		{"optimistic lock", fmt.Errorf("wrapped: %w", store.ErrConcurrentModification), true, false},
		{"plain", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.retryable {
				t.Errorf("isRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := isUniqueViolation(tt.err); got != tt.unique {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.unique)
			}
		})
	}
}
