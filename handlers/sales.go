package handlers

import (
	"net/http"

	"bitbucket.org/mmdatafocus/trade_backend/models"
	"github.com/gin-gonic/gin"
)

func CreateSale(c *gin.Context) {
	var input models.NewSale
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	sale, err := models.CreateSale(ctx, models.OperatorFromContext(ctx), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func ListSales(c *gin.Context) {
	var filter models.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(c, err)
		return
	}
	conn, err := models.PaginateSales(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func GetSale(c *gin.Context) {
	sale, err := models.GetSale(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

type saleStatusRequest struct {
	Status models.SaleStatus `json:"status" binding:"required"`
}

func UpdateSaleStatus(c *gin.Context) {
	var req saleStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	sale, err := models.UpdateSaleStatus(ctx, models.OperatorFromContext(ctx), c.Param("number"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func RecordSalePayment(c *gin.Context) {
	var input models.NewSalePayment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	sale, err := models.RecordSalePayment(ctx, models.OperatorFromContext(ctx), c.Param("number"), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}
