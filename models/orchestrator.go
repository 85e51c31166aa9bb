package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Operator is whoever performs an operation. An empty Id falls back to the
// machine identity when numbering orders.
type Operator struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

func OperatorFromContext(ctx context.Context) Operator {
	id, _ := utils.GetOperatorIdFromContext(ctx)
	name, _ := utils.GetOperatorNameFromContext(ctx)
	return Operator{Id: id, Name: name}
}

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/trade_backend/models")

func startSpan(ctx context.Context, name string, operator Operator) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("operator.id", operator.Id)))
}

// endSpan records err on span and hands it back.
func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ErrorKindOf(err)))
	}
	return err
}

func validateInput(input interface{}) error {
	if err := utils.ValidateStruct(input); err != nil {
		return newValidationError("%s", err.Error())
	}
	return nil
}

func normalizePhone(phone string) (string, error) {
	normalized, err := utils.NormalizePhoneNumber(phone, config.DefaultPhoneRegion())
	if err != nil {
		return "", newValidationError("invalid phone number %q", phone)
	}
	return normalized, nil
}

// replaced in tests
var generateOrderNumber = GenerateOrderNumber

// assignOrderNumber returns requested when the caller supplied one, otherwise
// a generated number probed through tx.
func assignOrderNumber(tx *gorm.DB, kind OrderKind, operator Operator, now time.Time, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	number, err := generateOrderNumber(tx.Statement.Context, NewOrderStore(tx), kind, now, operator.Id)
	if errors.Is(err, ErrIdentifierExhausted) {
		fallback := fallbackOrderNumber(kind, now)
		config.GetLogger().WithFields(logrus.Fields{
			"module":       "models",
			"funcName":     "assignOrderNumber",
			"order_kind":   kind,
			"order_number": fallback,
		}).Warn(err.Error())
		return fallback, nil
	}
	return number, err
}

// orchestrate runs write in one unit of work. Auto-numbered orders that lose
// the insert race on their number are retried once with a fresh number; a
// caller-supplied number is never retried.
func orchestrate(ctx context.Context, kind OrderKind, funcName string, operator Operator, requested string, write func(tx *gorm.DB, now time.Time) (string, error)) (string, error) {
	now := time.Now()
	release, _ := utils.BestEffortLock(ctx, orderNumberLockKey(kind, now, operator.Id), 5*time.Second, "models", funcName)
	defer release()

	attempts := 1
	if requested == "" {
		attempts = 2
	}

	var (
		orderNumber string
		err         error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runUnitOfWork(ctx, func(tx *gorm.DB) error {
			number, writeErr := write(tx, now)
			orderNumber = number
			return writeErr
		})
		if err == nil {
			config.GetMetrics().OrdersCreated.WithLabelValues(string(kind)).Inc()
			config.GetLogger().WithFields(logrus.Fields{
				"module":       "models",
				"funcName":     funcName,
				"order_kind":   kind,
				"order_number": orderNumber,
				"operator_id":  operator.Id,
			}).Info("order committed")
			return orderNumber, nil
		}
		if !errors.Is(err, ErrDuplicateIdentifier) || attempt == attempts {
			break
		}
		config.GetLogger().WithFields(logrus.Fields{
			"module":       "models",
			"funcName":     funcName,
			"order_number": orderNumber,
		}).Warn("order number taken at insert, regenerating")
	}

	config.GetMetrics().OrderFailures.WithLabelValues(string(kind), string(ErrorKindOf(err))).Inc()
	return "", err
}

// mutate runs a non-numbering write on an existing order in one unit of work.
func mutate(ctx context.Context, kind OrderKind, funcName string, orderNumber string, write func(tx *gorm.DB) error) error {
	err := runUnitOfWork(ctx, write)
	if err != nil {
		config.GetMetrics().OrderFailures.WithLabelValues(string(kind), string(ErrorKindOf(err))).Inc()
		config.LogError(config.GetLogger(), "models", funcName, orderNumber, nil, err)
	}
	return err
}

func orderNumberLockKey(kind OrderKind, now time.Time, operatorId string) string {
	return "order_number:" + string(kind) + ":" + now.Format(orderNumberTimeLayout) + ":" + operatorSuffix(operatorId)
}

// lockOrderRow takes a row lock on the order header and reports its current status.
// Concurrent writers to the same order serialize on it.
func lockOrderRow(tx *gorm.DB, model interface{}, orderNumber string) (string, error) {
	var statuses []string
	if err := tx.Model(model).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_number = ?", orderNumber).Limit(1).Pluck("current_status", &statuses).Error; err != nil {
		return "", err
	}
	if len(statuses) == 0 {
		return "", newNotFoundError("order %s not found", orderNumber)
	}
	return statuses[0], nil
}

func currentStatus(tx *gorm.DB, model interface{}, orderNumber string) (string, error) {
	var statuses []string
	if err := tx.Model(model).Where("order_number = ?", orderNumber).Limit(1).Pluck("current_status", &statuses).Error; err != nil {
		return "", err
	}
	if len(statuses) == 0 {
		return "", newNotFoundError("order %s not found", orderNumber)
	}
	return statuses[0], nil
}

// transitionStatus moves an order to status `to` only if it currently holds one of `from`.
func transitionStatus(tx *gorm.DB, model interface{}, orderNumber string, from []string, to string, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"current_status": to,
		"updated_at":     time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(model).Where("order_number = ? AND current_status IN ?", orderNumber, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	current, err := currentStatus(tx, model, orderNumber)
	if err != nil {
		return err
	}
	return newInvalidStatusChange(current, to)
}

func recordInsertError(orderNumber string, err error) error {
	if isDuplicateKeyError(err) {
		return newDuplicateIdentifier(orderNumber, err)
	}
	return err
}
