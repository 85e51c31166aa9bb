package middlewares

import (
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const CorrelationIdHeader = "X-Correlation-Id"

// RequestMiddleware tags every request with a correlation id and logs its outcome.
func RequestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.Request.Header.Get(CorrelationIdHeader)
		if correlationId == "" || len(correlationId) > 64 {
			correlationId = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), correlationId))
		c.Writer.Header().Set(CorrelationIdHeader, correlationId)

		start := time.Now()
		c.Next()

		operatorId, _ := utils.GetOperatorIdFromContext(c.Request.Context())
		entry := config.GetLogger().WithFields(logrus.Fields{
			"correlation_id": correlationId,
			"method":         c.Request.Method,
			"path":           c.FullPath(),
			"status":         c.Writer.Status(),
			"latency_ms":     time.Since(start).Milliseconds(),
			"operator_id":    operatorId,
		})
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
		} else {
			entry.Info("request handled")
		}
	}
}
