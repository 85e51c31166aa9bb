package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/models"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code          string            `json:"code"`
	Message       string            `json:"message"`
	Details       map[string]string `json:"details,omitempty"`
	CorrelationId string            `json:"correlation_id,omitempty"`
	Timestamp     string            `json:"timestamp"`
	Path          string            `json:"path"`
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindValidation:
		return http.StatusUnprocessableEntity
	case models.ErrorKindNotFound:
		return http.StatusNotFound
	case models.ErrorKindInsufficientStock, models.ErrorKindDuplicateIdentifier:
		return http.StatusConflict
	case models.ErrorKindIdentifierExhausted, models.ErrorKindStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	kind := models.ErrorKindOf(err)
	status := statusForKind(kind)
	correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())

	resp := ErrorResponse{
		Code:          string(kind),
		Message:       err.Error(),
		CorrelationId: correlationId,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Path:          c.Request.URL.Path,
	}
	var txErr *models.TransactionError
	if errors.As(err, &txErr) && txErr.Code != "" {
		resp.Code = txErr.Code
	}
	var stockErr *models.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.Details = map[string]string{
			"product_code": stockErr.ProductCode,
			"requested":    strconv.Itoa(stockErr.Requested),
			"available":    strconv.Itoa(stockErr.Available),
		}
	}
	if status >= http.StatusInternalServerError {
		if kind == "" {
			resp.Code = "InternalError"
		}
		// internal detail stays in the log
		config.LogError(config.GetLogger(), "handlers", c.FullPath(), correlationId, nil, err)
		resp.Message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, resp)
}

var errInvalidOrderKind = errors.New("order kind must be Sale, Purchase or Return")

func respondBadRequest(c *gin.Context, err error) {
	correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:          "BadRequest",
		Message:       err.Error(),
		CorrelationId: correlationId,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Path:          c.Request.URL.Path,
	})
}
