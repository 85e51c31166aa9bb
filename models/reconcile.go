package models

import (
	"context"

	"bitbucket.org/mmdatafocus/trade_backend/config"
)

// InventoryMismatch is a product whose quantity disagrees with its history.
type InventoryMismatch struct {
	ProductCode  string `json:"product_code"`
	Quantity     int    `json:"quantity"`
	HistoryTotal int    `json:"history_total"`
}

// ReconcileInventory lists every product whose on-hand quantity differs from
// the sum of its history deltas.
func ReconcileInventory(ctx context.Context) ([]*InventoryMismatch, error) {
	var mismatches []*InventoryMismatch
	err := config.GetDB().WithContext(ctx).
		Table("products").
		Select("products.code AS product_code, products.quantity AS quantity, COALESCE(SUM(inventory_histories.delta), 0) AS history_total").
		Joins("LEFT JOIN inventory_histories ON inventory_histories.product_code = products.code").
		Group("products.code, products.quantity").
		Having("products.quantity <> COALESCE(SUM(inventory_histories.delta), 0)").
		Order("products.code").
		Scan(&mismatches).Error
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return mismatches, nil
}
