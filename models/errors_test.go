package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ErrorKindStoreUnavailable},
		{"deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, ErrorKindStoreUnavailable},
		{"lost connection", mysql.ErrInvalidConn, ErrorKindStoreUnavailable},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), ErrorKindStoreUnavailable},
		{"record not found", gorm.ErrRecordNotFound, ErrorKindNotFound},
		{"stray duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'PRIMARY'"}, ErrorKindInvariantViolation},
		{"anything else", errors.New("syntax error"), ErrorKindInvariantViolation},
		{"already classified", newInsufficientStock("P1", 2, 1), ErrorKindInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKindOf(classifyStoreError(tt.err)))
		})
	}
	assert.NoError(t, classifyStoreError(nil))
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, isDuplicateKeyError(gorm.ErrDuplicatedKey))
	assert.True(t, isDuplicateKeyError(&mysql.MySQLError{Number: 1062}))
	assert.True(t, isDuplicateKeyError(errors.New("UNIQUE constraint failed: sales.order_number")))
	assert.False(t, isDuplicateKeyError(&mysql.MySQLError{Number: 1213}))
	assert.False(t, isDuplicateKeyError(nil))
}

func TestTransactionErrorMatching(t *testing.T) {
	ref := newInvalidReturnReference("sale %s not found", "SL1")
	assert.ErrorIs(t, ref, ErrValidation)
	assert.ErrorIs(t, ref, ErrInvalidReturnReference)
	assert.NotErrorIs(t, ref, ErrInvalidStatusChange)
	assert.NotErrorIs(t, newValidationError("bad"), ErrInvalidReturnReference)
	assert.NotErrorIs(t, ref, ErrNotFound)

	wrapped := fmt.Errorf("handler: %w", newInsufficientStock("P1", 5, 2))
	assert.ErrorIs(t, wrapped, ErrInsufficientStock)
	assert.Equal(t, ErrorKindInsufficientStock, ErrorKindOf(wrapped))
	var detail *InsufficientStockError
	assert.True(t, errors.As(wrapped, &detail))
	assert.Equal(t, 2, detail.Available)
	// the detail is printed once
	assert.Equal(t, "insufficient stock for product P1: requested 5, available 2", newInsufficientStock("P1", 5, 2).Error())
	assert.Equal(t, "InvariantViolation", (&TransactionError{Kind: ErrorKindInvariantViolation}).Error())

	assert.Equal(t, ErrorKind(""), ErrorKindOf(errors.New("plain")))
	assert.Equal(t, "cannot change status from Paid to Unpaid", newInvalidStatusChange("Paid", "Unpaid").Error())
}

func TestRunUnitOfWorkWithoutDatabase(t *testing.T) {
	setupTestDB(t)
	// setupTestDB's cleanup restores the connection
	config.SetDB(nil)

	err := runUnitOfWork(context.Background(), func(tx *gorm.DB) error { return nil })
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRunUnitOfWorkRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 10, "10")

	err := runUnitOfWork(context.Background(), func(tx *gorm.DB) error {
		if _, _, err := ApplyStockChange(tx, StockChange{ProductCode: "P001", Delta: -4, Operation: StockOperationSale}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 10, quantityOf(t, "P001"))
	assert.EqualValues(t, 1, countRows(t, db, &InventoryHistory{}))
}

func TestRunUnitOfWorkCancelledContext(t *testing.T) {
	setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runUnitOfWork(ctx, func(tx *gorm.DB) error { return nil })
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
