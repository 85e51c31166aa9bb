package models

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestApplyStockChangeRequiresTransaction(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 10, "10")

	_, _, err := ApplyStockChange(db, StockChange{ProductCode: "P001", Delta: 1, Operation: StockOperationManualAdjustment})
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 10, quantityOf(t, "P001"))
}

func TestApplyStockChangeGuards(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 10, "10")

	tests := []struct {
		name   string
		change StockChange
		want   error
	}{
		{"zero delta", StockChange{ProductCode: "P001", Delta: 0, Operation: StockOperationSale}, ErrValidation},
		{"unknown operation", StockChange{ProductCode: "P001", Delta: 1, Operation: "Gift"}, ErrValidation},
		{"missing product", StockChange{ProductCode: "NOPE", Delta: 1, Operation: StockOperationPurchase}, ErrNotFound},
		{"overdraw", StockChange{ProductCode: "P001", Delta: -11, Operation: StockOperationSale}, ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.Transaction(func(tx *gorm.DB) error {
				_, _, err := ApplyStockChange(tx, tt.change)
				return err
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 10, quantityOf(t, "P001"))
}

func TestApplyStockChangeWritesHistoryWithPrice(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 10, "10")

	price := decimal.RequireFromString("4.25")
	var (
		newQty    int
		historyId int
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		newQty, historyId, err = ApplyStockChange(tx, StockChange{
			ProductCode:   "P001",
			Delta:         -10,
			Operation:     StockOperationSale,
			OperatorId:    "7",
			UnitPrice:     &price,
			PurchasePrice: &price,
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, newQty)

	var history InventoryHistory
	require.NoError(t, db.First(&history, historyId).Error)
	assert.Equal(t, -10, history.Delta)
	assert.Equal(t, 0, history.QuantityAfter)
	require.NotNil(t, history.UnitPrice)
	assert.True(t, history.UnitPrice.Equal(price), history.UnitPrice.String())
	assert.Nil(t, history.OrderNumber)

	product, err := GetProduct(context.Background(), "P001")
	require.NoError(t, err)
	assert.True(t, product.PurchasePrice.Equal(price), product.PurchasePrice.String())
}

func TestAdjustStock(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "P001", 10, "10")
	ctx := context.Background()

	history, err := AdjustStock(ctx, testOperator, "P001", &NewStockAdjustment{Delta: 5, Reason: "found in back room"})
	require.NoError(t, err)
	assert.Equal(t, StockOperationManualAdjustment, history.Operation)
	assert.Equal(t, 15, history.QuantityAfter)
	assert.Equal(t, "found in back room", history.Reason)

	_, err = AdjustStock(ctx, testOperator, "P001", &NewStockAdjustment{Delta: -16, Reason: "shrinkage"})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = AdjustStock(ctx, testOperator, "P001", &NewStockAdjustment{Delta: 0, Reason: "noop"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = AdjustStock(ctx, testOperator, "P001", &NewStockAdjustment{Delta: -1, Reason: "   "})
	require.ErrorIs(t, err, ErrValidation)

	_, err = AdjustStock(ctx, testOperator, "NOPE", &NewStockAdjustment{Delta: 1, Reason: "typo"})
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 15, quantityOf(t, "P001"))
}

func TestInventoryHistoryIsAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 10, "10")

	code := "P001"
	histories, err := GetInventoryHistories(context.Background(), InventoryHistoryFilter{ProductCode: &code})
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, "opening stock", histories[0].Reason)

	err = db.Model(histories[0]).Update("delta", 99).Error
	assert.ErrorIs(t, err, errHistoryAppendOnly)
	err = db.Delete(histories[0]).Error
	assert.ErrorIs(t, err, errHistoryAppendOnly)

	_, err = GetInventoryHistories(context.Background(), InventoryHistoryFilter{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateProduct(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	threshold := 3
	product, err := CreateProduct(ctx, testOperator, &NewProduct{Code: " P010 ", Name: "Soap", LowStockThreshold: &threshold})
	require.NoError(t, err)
	assert.Equal(t, "P010", product.Code)
	assert.Equal(t, 0, product.Quantity)
	assert.Equal(t, "pcs", product.Unit)
	assert.Equal(t, "Uncategorized", product.Category)

	_, err = CreateProduct(ctx, testOperator, &NewProduct{Code: "P010", Name: "Soap again"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = CreateProduct(ctx, testOperator, &NewProduct{Code: "P011", Name: "Bad", SalePrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrValidation)

	seedProduct(t, "P012", 50, "2")
	low, err := GetLowStockProducts(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "P010", low[0].Code)
}

func TestReconcileInventoryReportsDrift(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 100, "10")
	seedProduct(t, "P002", 5, "10")
	sellOne(t, "P001", 5)

	mismatches, err := ReconcileInventory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	require.NoError(t, db.Exec("UPDATE products SET quantity = ? WHERE code = ?", 7, "P001").Error)

	mismatches, err = ReconcileInventory(context.Background())
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "P001", mismatches[0].ProductCode)
	assert.Equal(t, 7, mismatches[0].Quantity)
	assert.Equal(t, 95, mismatches[0].HistoryTotal)
}
