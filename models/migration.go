package models

import (
	"bitbucket.org/mmdatafocus/trade_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&Product{}, &InventoryHistory{},
		&Sale{}, &SaleDetail{},
		&PurchaseOrder{}, &PurchaseOrderDetail{},
		&SalesReturn{}, &SalesReturnDetail{},
		&OrderEventRecord{},
	)
}
