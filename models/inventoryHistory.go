package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var errHistoryAppendOnly = errors.New("inventory history is append-only")

// InventoryHistory is one realized stock movement. Rows are never updated or deleted.
type InventoryHistory struct {
	ID            int                `gorm:"primary_key" json:"id"`
	ProductCode   string             `gorm:"size:50;index;not null" json:"product_code"`
	Delta         int                `gorm:"not null" json:"delta"`
	QuantityAfter int                `gorm:"not null" json:"quantity_after"`
	Operation     StockOperationKind `gorm:"size:20;index;not null" json:"operation"`
	OccurredAt    time.Time          `gorm:"index;not null" json:"occurred_at"`
	OperatorId    string             `gorm:"size:100;index" json:"operator_id"`
	OrderNumber   *string            `gorm:"size:50;index" json:"order_number"`
	UnitPrice     *decimal.Decimal   `gorm:"type:decimal(20,4)" json:"unit_price"`
	Reason        string             `gorm:"size:255" json:"reason"`
}

func (h *InventoryHistory) BeforeUpdate(tx *gorm.DB) error {
	return errHistoryAppendOnly
}

func (h *InventoryHistory) BeforeDelete(tx *gorm.DB) error {
	return errHistoryAppendOnly
}

type InventoryHistoryFilter struct {
	ProductCode *string `form:"product_code"`
	OrderNumber *string `form:"order_number"`
	Operation   *string `form:"operation"`
	Limit       *int    `form:"limit"`
}

// GetInventoryHistories returns movements oldest first.
func GetInventoryHistories(ctx context.Context, filter InventoryHistoryFilter) ([]*InventoryHistory, error) {
	dbCtx := config.GetDB().WithContext(ctx).Model(&InventoryHistory{})
	if filter.ProductCode == nil && filter.OrderNumber == nil {
		return nil, newValidationError("product code or order number is required")
	}
	if filter.ProductCode != nil {
		dbCtx = dbCtx.Where("product_code = ?", *filter.ProductCode)
	}
	if filter.OrderNumber != nil {
		dbCtx = dbCtx.Where("order_number = ?", *filter.OrderNumber)
	}
	if filter.Operation != nil && *filter.Operation != "" {
		dbCtx = dbCtx.Where("operation = ?", *filter.Operation)
	}
	limit := maxPageSize
	if filter.Limit != nil && *filter.Limit > 0 && *filter.Limit < maxPageSize {
		limit = *filter.Limit
	}

	var histories []*InventoryHistory
	if err := dbCtx.Order("id").Limit(limit).Find(&histories).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return histories, nil
}
