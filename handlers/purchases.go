package handlers

import (
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/trade_backend/models"
	"github.com/gin-gonic/gin"
)

func CreatePurchase(c *gin.Context) {
	var input models.NewPurchaseOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	po, err := models.CreatePurchase(ctx, models.OperatorFromContext(ctx), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, po)
}

func CreatePurchaseOrder(c *gin.Context) {
	var input models.NewPurchaseOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	po, err := models.CreatePurchaseOrder(ctx, models.OperatorFromContext(ctx), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, po)
}

func UpdatePurchaseOrder(c *gin.Context) {
	var input models.NewPurchaseOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	po, err := models.UpdatePurchaseOrder(ctx, models.OperatorFromContext(ctx), c.Param("number"), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

type purchaseOrderTransition func(ctx context.Context, operator models.Operator, orderNumber string) (*models.PurchaseOrder, error)

func transitionPurchaseOrder(fn purchaseOrderTransition) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		po, err := fn(ctx, models.OperatorFromContext(ctx), c.Param("number"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	}
}

var (
	ApprovePurchaseOrder  = transitionPurchaseOrder(models.ApprovePurchaseOrder)
	DeliverPurchaseOrder  = transitionPurchaseOrder(models.DeliverPurchaseOrder)
	CompletePurchaseOrder = transitionPurchaseOrder(models.CompletePurchaseOrder)
	CancelPurchaseOrder   = transitionPurchaseOrder(models.CancelPurchaseOrder)
)

func ListPurchaseOrders(c *gin.Context) {
	var filter models.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(c, err)
		return
	}
	conn, err := models.PaginatePurchaseOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func GetPurchaseOrder(c *gin.Context) {
	po, err := models.GetPurchaseOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}
