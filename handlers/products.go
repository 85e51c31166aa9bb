package handlers

import (
	"net/http"

	"bitbucket.org/mmdatafocus/trade_backend/models"
	"github.com/gin-gonic/gin"
)

func CreateProduct(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	product, err := models.CreateProduct(ctx, models.OperatorFromContext(ctx), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func GetProduct(c *gin.Context) {
	product, err := models.GetProduct(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func ListLowStockProducts(c *gin.Context) {
	products, err := models.GetLowStockProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func GetProductHistory(c *gin.Context) {
	var filter models.InventoryHistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(c, err)
		return
	}
	code := c.Param("code")
	filter.ProductCode = &code
	histories, err := models.GetInventoryHistories(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, histories)
}

func AdjustStock(c *gin.Context) {
	var input models.NewStockAdjustment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	history, err := models.AdjustStock(ctx, models.OperatorFromContext(ctx), c.Param("code"), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, history)
}

func ReconcileInventory(c *gin.Context) {
	mismatches, err := models.ReconcileInventory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mismatches": mismatches})
}

func GetOrderEvents(c *gin.Context) {
	kind := models.OrderKind(c.Param("kind"))
	if !kind.IsValid() {
		respondBadRequest(c, errInvalidOrderKind)
		return
	}
	events, err := models.GetOrderEvents(c.Request.Context(), kind, c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
