package models

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testOperator = Operator{Id: "42", Name: "Tester"}

// setupTestDB installs a private in-memory database as the global DB.
// A single connection keeps every unit of work strictly serialized.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("DB_COMMAND_TIMEOUT_SECONDS", "10")

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), config.InitConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	previous := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(previous)
		_ = sqlDB.Close()
	})

	require.NoError(t, MigrateTable())
	return db
}

func seedProduct(t *testing.T, code string, qty int, salePrice string) *Product {
	t.Helper()
	product, err := CreateProduct(context.Background(), testOperator, &NewProduct{
		Code:            code,
		Name:            "Product " + code,
		SalePrice:       decimal.RequireFromString(salePrice),
		PurchasePrice:   decimal.RequireFromString(salePrice).Div(decimal.NewFromInt(2)),
		OpeningQuantity: qty,
	})
	require.NoError(t, err)
	return product
}

func quantityOf(t *testing.T, code string) int {
	t.Helper()
	product, err := GetProduct(context.Background(), code)
	require.NoError(t, err)
	return product.Quantity
}

func historiesForOrder(t *testing.T, orderNumber string) []*InventoryHistory {
	t.Helper()
	histories, err := GetInventoryHistories(context.Background(), InventoryHistoryFilter{OrderNumber: &orderNumber})
	require.NoError(t, err)
	return histories
}

func sellOne(t *testing.T, code string, qty int) *Sale {
	t.Helper()
	sale, err := CreateSale(context.Background(), testOperator, &NewSale{
		CustomerName: "Walk-in",
		Details:      []NewSaleDetail{{ProductCode: code, Qty: qty}},
	})
	require.NoError(t, err)
	return sale
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
