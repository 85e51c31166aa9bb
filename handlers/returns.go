package handlers

import (
	"net/http"

	"bitbucket.org/mmdatafocus/trade_backend/models"
	"github.com/gin-gonic/gin"
)

func CreateReturn(c *gin.Context) {
	var input models.NewSalesReturn
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	ret, err := models.CreateReturn(ctx, models.OperatorFromContext(ctx), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ret)
}

func UpdateReturn(c *gin.Context) {
	var input models.NewSalesReturn
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	ret, err := models.UpdateReturn(ctx, models.OperatorFromContext(ctx), c.Param("number"), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

type returnStatusRequest struct {
	Status models.ReturnStatus `json:"status" binding:"required"`
}

func UpdateReturnStatus(c *gin.Context) {
	var req returnStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	ret, err := models.UpdateReturnStatus(ctx, models.OperatorFromContext(ctx), c.Param("number"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

func ListReturns(c *gin.Context) {
	var filter models.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(c, err)
		return
	}
	conn, err := models.PaginateReturns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func GetReturn(c *gin.Context) {
	ret, err := models.GetReturn(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}
