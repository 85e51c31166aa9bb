package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockChange is one signed movement of a product's on-hand quantity.
type StockChange struct {
	ProductCode string
	Delta       int
	Operation   StockOperationKind
	OperatorId  string
	OrderNumber *string
	UnitPrice   *decimal.Decimal
	// overwrites the product's purchase price when set
	PurchasePrice *decimal.Decimal
	Reason        string
}

// ApplyStockChange moves a product's quantity by change.Delta and appends one
// history row. Debits are conditional on the row holding enough stock at
// execution time, so concurrent debits can never drive quantity below zero.
// tx must be an open transaction owned by the caller.
func ApplyStockChange(tx *gorm.DB, change StockChange) (newQty int, historyId int, err error) {
	if !inTransaction(tx) {
		return 0, 0, newInvariantViolation("stock changes must run inside a transaction", nil)
	}
	if change.ProductCode == "" {
		return 0, 0, newValidationError("product code is required")
	}
	if change.Delta == 0 {
		return 0, 0, newValidationError("stock delta for %s must not be zero", change.ProductCode)
	}
	if !change.Operation.IsValid() {
		return 0, 0, newValidationError("invalid stock operation %q", change.Operation)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"quantity":     gorm.Expr("quantity + ?", change.Delta),
		"last_updated": now,
	}
	if change.PurchasePrice != nil {
		updates["purchase_price"] = *change.PurchasePrice
	}

	stmt := tx.Model(&Product{}).Where("code = ?", change.ProductCode)
	if change.Delta < 0 {
		stmt = stmt.Where("quantity >= ?", -change.Delta)
	}
	res := stmt.Updates(updates)
	if res.Error != nil {
		return 0, 0, res.Error
	}
	if res.RowsAffected == 0 {
		var current Product
		err := tx.Select("code", "quantity").Where("code = ?", change.ProductCode).Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, newNotFoundError("product %s not found", change.ProductCode)
		}
		if err != nil {
			return 0, 0, err
		}
		if change.Delta < 0 {
			return 0, 0, newInsufficientStock(change.ProductCode, -change.Delta, current.Quantity)
		}
		return 0, 0, newInvariantViolation("stock credit for "+change.ProductCode+" affected no rows", nil)
	}

	if err := tx.Model(&Product{}).Select("quantity").Where("code = ?", change.ProductCode).Scan(&newQty).Error; err != nil {
		return 0, 0, err
	}

	history := InventoryHistory{
		ProductCode:   change.ProductCode,
		Delta:         change.Delta,
		QuantityAfter: newQty,
		Operation:     change.Operation,
		OccurredAt:    now,
		OperatorId:    change.OperatorId,
		OrderNumber:   change.OrderNumber,
		UnitPrice:     change.UnitPrice,
		Reason:        change.Reason,
	}
	if err := tx.Create(&history).Error; err != nil {
		return 0, 0, err
	}

	config.GetMetrics().StockChanges.WithLabelValues(string(change.Operation)).Inc()
	return newQty, history.ID, nil
}

type NewStockAdjustment struct {
	Delta  int    `json:"delta" validate:"ne=0"`
	Reason string `json:"reason" validate:"required,max=255"`
}

// AdjustStock books a manual correction in its own unit of work.
func AdjustStock(ctx context.Context, operator Operator, productCode string, input *NewStockAdjustment) (*InventoryHistory, error) {
	ctx, span := startSpan(ctx, "AdjustStock", operator)
	defer span.End()

	input.Reason = strings.TrimSpace(input.Reason)
	if err := validateInput(input); err != nil {
		return nil, endSpan(span, err)
	}

	var history InventoryHistory
	err := runUnitOfWork(ctx, func(tx *gorm.DB) error {
		_, historyId, err := ApplyStockChange(tx, StockChange{
			ProductCode: strings.TrimSpace(productCode),
			Delta:       input.Delta,
			Operation:   StockOperationManualAdjustment,
			OperatorId:  operator.Id,
			Reason:      input.Reason,
		})
		if err != nil {
			return err
		}
		return tx.Where("id = ?", historyId).Take(&history).Error
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "AdjustStock", productCode, input, err)
		return nil, endSpan(span, err)
	}
	return &history, nil
}
