package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"gorm.io/gorm"
)

// runUnitOfWork runs fn inside one database transaction bounded by the configured
// command timeout. Nothing is committed unless fn returns nil; errors leaving
// here are always *TransactionError.
func runUnitOfWork(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	db := config.GetDB()
	if db == nil {
		return newStoreUnavailable(errors.New("database is not connected"))
	}
	if timeout := config.CommandTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return classifyStoreError(tx.Error)
	}

	committed := false
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		classified := classifyStoreError(err)
		if ctxErr := ctx.Err(); ctxErr != nil && ErrorKindOf(classified) == ErrorKindInvariantViolation {
			return newStoreUnavailable(ctxErr)
		}
		return classified
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newStoreUnavailable(ctxErr)
	}
	if err := tx.Commit().Error; err != nil {
		return classifyStoreError(err)
	}
	committed = true
	return nil
}

// inTransaction reports whether db is bound to an open transaction.
func inTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}
