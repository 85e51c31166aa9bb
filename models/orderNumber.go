package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxOrderNumberAttempts = 99 // base candidate plus suffixes 02..99
	orderNumberTimeLayout  = "200601021504"
	operatorSuffixLength   = 4
)

// OrderNumberProber reports whether an order number is already taken for a kind.
type OrderNumberProber interface {
	OrderNumberExists(ctx context.Context, kind OrderKind, orderNumber string) (bool, error)
}

// replaced in tests
var machineSuffix = utils.MachineSuffix

func operatorSuffix(operatorId string) string {
	id := []rune(strings.ToUpper(strings.TrimSpace(operatorId)))
	if len(id) == 0 {
		return machineSuffix()
	}
	if len(id) >= operatorSuffixLength {
		return string(id[len(id)-operatorSuffixLength:])
	}
	return strings.Repeat("0", operatorSuffixLength-len(id)) + string(id)
}

// GenerateOrderNumber builds <prefix><yyyyMMddHHmm><suffix> and escalates a
// two-digit attempt counter until the prober reports the candidate free.
// A probe that fails is treated as free; the primary key decides in the end.
func GenerateOrderNumber(ctx context.Context, prober OrderNumberProber, kind OrderKind, now time.Time, operatorId string) (string, error) {
	if !kind.IsValid() {
		return "", newValidationError("invalid order kind %q", kind)
	}
	base := kind.Prefix() + now.Format(orderNumberTimeLayout) + operatorSuffix(operatorId)

	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = base + fmt.Sprintf("%02d", attempt)
		}
		exists, err := prober.OrderNumberExists(ctx, kind, candidate)
		if err != nil {
			config.GetLogger().WithFields(logrus.Fields{
				"module":       "models",
				"funcName":     "GenerateOrderNumber",
				"order_number": candidate,
			}).WithError(err).Warn("order number probe failed, using candidate")
			return candidate, nil
		}
		if !exists {
			return candidate, nil
		}
		config.GetMetrics().IdentifierCollisions.WithLabelValues(string(kind)).Inc()
	}

	return "", &TransactionError{
		Kind:    ErrorKindIdentifierExhausted,
		Message: fmt.Sprintf("no free order number after %d attempts for %s", maxOrderNumberAttempts, base),
	}
}

// fallbackOrderNumber is used once the suffix space of a minute is exhausted.
func fallbackOrderNumber(kind OrderKind, now time.Time) string {
	entropy := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return kind.Prefix() + now.Format("20060102150405") + entropy
}
