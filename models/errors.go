package models

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type ErrorKind string

const (
	ErrorKindValidation          ErrorKind = "ValidationError"
	ErrorKindNotFound            ErrorKind = "NotFound"
	ErrorKindInsufficientStock   ErrorKind = "InsufficientStock"
	ErrorKindDuplicateIdentifier ErrorKind = "DuplicateIdentifier"
	ErrorKindIdentifierExhausted ErrorKind = "IdentifierExhausted"
	ErrorKindInvariantViolation  ErrorKind = "InvariantViolation"
	ErrorKindStoreUnavailable    ErrorKind = "StoreUnavailable"
)

// TransactionError is the error every exported operation in this package returns.
// Code narrows a kind further, e.g. InvalidReturnReference is a ValidationError.
type TransactionError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *TransactionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		return e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
		if e.Code != "" {
			msg = e.Code
		}
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind and, when the sentinel carries one, by code.
func (e *TransactionError) Is(target error) bool {
	t, ok := target.(*TransactionError)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrValidation             = &TransactionError{Kind: ErrorKindValidation}
	ErrInvalidReturnReference = &TransactionError{Kind: ErrorKindValidation, Code: "InvalidReturnReference"}
	ErrInvalidStatusChange    = &TransactionError{Kind: ErrorKindValidation, Code: "InvalidStatusChange"}
	ErrNotFound               = &TransactionError{Kind: ErrorKindNotFound}
	ErrInsufficientStock      = &TransactionError{Kind: ErrorKindInsufficientStock}
	ErrDuplicateIdentifier    = &TransactionError{Kind: ErrorKindDuplicateIdentifier}
	ErrIdentifierExhausted    = &TransactionError{Kind: ErrorKindIdentifierExhausted}
	ErrInvariantViolation     = &TransactionError{Kind: ErrorKindInvariantViolation}
	ErrStoreUnavailable       = &TransactionError{Kind: ErrorKindStoreUnavailable}
)

// InsufficientStockError carries the numbers of a rejected debit.
type InsufficientStockError struct {
	ProductCode string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductCode, e.Requested, e.Available)
}

// ErrorKindOf returns the kind of err, or "" when err did not come from this package.
func ErrorKindOf(err error) ErrorKind {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr.Kind
	}
	return ""
}

func newValidationError(format string, args ...interface{}) error {
	return &TransactionError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

func newNotFoundError(format string, args ...interface{}) error {
	return &TransactionError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func newInvalidReturnReference(format string, args ...interface{}) error {
	return &TransactionError{Kind: ErrorKindValidation, Code: ErrInvalidReturnReference.Code, Message: fmt.Sprintf(format, args...)}
}

func newInvalidStatusChange(from, to string) error {
	return &TransactionError{
		Kind:    ErrorKindValidation,
		Code:    ErrInvalidStatusChange.Code,
		Message: fmt.Sprintf("cannot change status from %s to %s", from, to),
	}
}

func newInsufficientStock(productCode string, requested, available int) error {
	detail := &InsufficientStockError{ProductCode: productCode, Requested: requested, Available: available}
	return &TransactionError{Kind: ErrorKindInsufficientStock, Err: detail}
}

func newDuplicateIdentifier(orderNumber string, err error) error {
	return &TransactionError{Kind: ErrorKindDuplicateIdentifier, Message: "order number " + orderNumber + " already exists", Err: err}
}

func newInvariantViolation(message string, err error) error {
	return &TransactionError{Kind: ErrorKindInvariantViolation, Message: message, Err: err}
}

func newStoreUnavailable(err error) error {
	return &TransactionError{Kind: ErrorKindStoreUnavailable, Message: "store unavailable", Err: err}
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

func isTransientStoreError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1205, 1213, 2006, 2013:
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sql: database is closed")
}

// classifyStoreError maps an error escaping a unit of work onto the error taxonomy.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &TransactionError{Kind: ErrorKindNotFound, Message: "record not found", Err: err}
	}
	if isTransientStoreError(err) {
		return newStoreUnavailable(err)
	}
	if isDuplicateKeyError(err) {
		return newInvariantViolation("unexpected duplicate key", err)
	}
	return newInvariantViolation("store operation failed", err)
}
