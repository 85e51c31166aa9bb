package handlers

import (
	"bitbucket.org/mmdatafocus/trade_backend/middlewares"
	"github.com/gin-gonic/gin"
)

// Operation names checked against token permissions.
const (
	PermSaleCreate          = "sale.create"
	PermSaleUpdate          = "sale.update"
	PermPurchaseCreate      = "purchase.create"
	PermPurchaseOrderManage = "purchase_order.manage"
	PermReturnCreate        = "return.create"
	PermReturnUpdate        = "return.update"
	PermProductCreate       = "product.create"
	PermStockAdjust         = "stock.adjust"
	PermInventoryReconcile  = "inventory.reconcile"
)

// RegisterRoutes mounts the trade API on router. The caller installs AuthMiddleware.
func RegisterRoutes(router *gin.RouterGroup) {
	perm := middlewares.RequirePermission

	sales := router.Group("/sales")
	{
		sales.POST("", perm(PermSaleCreate), CreateSale)
		sales.GET("", ListSales)
		sales.GET("/:number", GetSale)
		sales.PATCH("/:number/status", perm(PermSaleUpdate), UpdateSaleStatus)
		sales.POST("/:number/payments", perm(PermSaleUpdate), RecordSalePayment)
	}

	router.POST("/purchases", perm(PermPurchaseCreate), CreatePurchase)

	purchaseOrders := router.Group("/purchase-orders")
	{
		purchaseOrders.POST("", perm(PermPurchaseOrderManage), CreatePurchaseOrder)
		purchaseOrders.GET("", ListPurchaseOrders)
		purchaseOrders.GET("/:number", GetPurchaseOrder)
		purchaseOrders.PUT("/:number", perm(PermPurchaseOrderManage), UpdatePurchaseOrder)
		purchaseOrders.POST("/:number/approve", perm(PermPurchaseOrderManage), ApprovePurchaseOrder)
		purchaseOrders.POST("/:number/deliver", perm(PermPurchaseOrderManage), DeliverPurchaseOrder)
		purchaseOrders.POST("/:number/complete", perm(PermPurchaseOrderManage), CompletePurchaseOrder)
		purchaseOrders.POST("/:number/cancel", perm(PermPurchaseOrderManage), CancelPurchaseOrder)
	}

	returns := router.Group("/returns")
	{
		returns.POST("", perm(PermReturnCreate), CreateReturn)
		returns.GET("", ListReturns)
		returns.GET("/:number", GetReturn)
		returns.PUT("/:number", perm(PermReturnUpdate), UpdateReturn)
		returns.PATCH("/:number/status", perm(PermReturnUpdate), UpdateReturnStatus)
	}

	products := router.Group("/products")
	{
		products.POST("", perm(PermProductCreate), CreateProduct)
		products.GET("/low-stock", ListLowStockProducts)
		products.GET("/:code", GetProduct)
		products.GET("/:code/history", GetProductHistory)
		products.POST("/:code/adjustments", perm(PermStockAdjust), AdjustStock)
	}

	router.GET("/inventory/reconcile", perm(PermInventoryReconcile), ReconcileInventory)
	router.GET("/orders/:kind/:number/events", GetOrderEvents)
}
