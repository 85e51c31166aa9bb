package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SalesReturn restores stock for goods brought back against an earlier sale.
type SalesReturn struct {
	OrderNumber         string              `gorm:"primaryKey;size:50" json:"order_number"`
	OriginalOrderNumber string              `gorm:"size:50;index;not null" json:"original_order_number"`
	ReturnDate          time.Time           `gorm:"index;not null" json:"return_date"`
	CustomerName        string              `gorm:"size:255;index" json:"customer_name"`
	CustomerPhone       string              `gorm:"size:30" json:"customer_phone"`
	OperatorId          string              `gorm:"size:100;index" json:"operator_id"`
	OperatorName        string              `gorm:"size:100" json:"operator_name"`
	CurrentStatus       ReturnStatus        `gorm:"size:20;index;not null" json:"current_status"`
	Reason              string              `gorm:"size:255" json:"reason"`
	TotalAmount         decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	RefundAmount        decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"refund_amount"`
	RefundMethod        string              `gorm:"size:50" json:"refund_method"`
	Notes               string              `gorm:"type:text" json:"notes"`
	RefundedAt          *time.Time          `json:"refunded_at"`
	Details             []SalesReturnDetail `gorm:"foreignKey:OrderNumber;references:OrderNumber" json:"details"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type SalesReturnDetail struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OrderNumber   string          `gorm:"size:50;index;not null" json:"order_number"`
	LineNo        int             `gorm:"not null" json:"line_no"`
	ProductCode   string          `gorm:"size:50;index;not null" json:"product_code"`
	ProductName   string          `gorm:"size:255" json:"product_name"`
	Qty           int             `gorm:"not null" json:"qty"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	OriginalPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"original_price"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

func (r SalesReturn) GetCursor() string {
	return r.OrderNumber
}

type NewSalesReturn struct {
	OrderNumber         string                 `json:"order_number" validate:"max=50"`
	OriginalOrderNumber string                 `json:"original_order_number" validate:"max=50"`
	ReturnDate          *time.Time             `json:"return_date"`
	CustomerName        string                 `json:"customer_name" validate:"max=255"`
	CustomerPhone       string                 `json:"customer_phone"`
	Reason              string                 `json:"reason" validate:"max=255"`
	RefundMethod        string                 `json:"refund_method" validate:"max=50"`
	Notes               string                 `json:"notes"`
	Details             []NewSalesReturnDetail `json:"details" validate:"required,min=1,dive"`
}

type NewSalesReturnDetail struct {
	ProductCode string `json:"product_code" validate:"required,max=50"`
	Qty         int    `json:"qty" validate:"gt=0"`
	// refund per unit; defaults to the net unit price on the original sale
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Amount    *decimal.Decimal `json:"amount"`
}

func (input *NewSalesReturn) validate() error {
	input.OrderNumber = strings.TrimSpace(input.OrderNumber)
	input.OriginalOrderNumber = strings.TrimSpace(input.OriginalOrderNumber)
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	if err := validateInput(input); err != nil {
		return err
	}
	phone, err := normalizePhone(input.CustomerPhone)
	if err != nil {
		return err
	}
	input.CustomerPhone = phone
	for i := range input.Details {
		d := &input.Details[i]
		d.ProductCode = strings.TrimSpace(d.ProductCode)
		if d.UnitPrice != nil && d.UnitPrice.IsNegative() {
			return newValidationError("line %d: unit price must not be negative", i+1)
		}
	}
	return nil
}

type soldLine struct {
	name   string
	qty    int
	amount decimal.Decimal
}

func (l soldLine) netUnitPrice() decimal.Decimal {
	if l.qty == 0 {
		return decimal.Zero
	}
	return utils.RoundMoney(l.amount.Div(decimal.NewFromInt(int64(l.qty))))
}

// checkReturnAgainstSale verifies every line refers to a product on the
// original sale and that no product is returned beyond what was sold, counting
// other returns against the same sale. It serializes returns per sale by
// locking the sale row.
func checkReturnAgainstSale(tx *gorm.DB, originalNumber string, excludeReturn string, details []NewSalesReturnDetail) (*Sale, map[string]soldLine, error) {
	ctx := tx.Statement.Context
	if originalNumber == "" {
		return nil, nil, newInvalidReturnReference("original order number is required")
	}
	sale, err := getOrder[Sale](ctx, tx, OrderKindSale, originalNumber)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, newInvalidReturnReference("original sale %s not found", originalNumber)
	}
	if err != nil {
		return nil, nil, err
	}

	store := NewOrderStore(tx)
	requested := make(map[string]int)
	for _, d := range details {
		onSale, err := store.OrderItemBelongsToOrder(ctx, OrderKindSale, originalNumber, d.ProductCode)
		if err != nil {
			return nil, nil, err
		}
		if !onSale {
			return nil, nil, newInvalidReturnReference("product %s is not on sale %s", d.ProductCode, originalNumber)
		}
		requested[d.ProductCode] += d.Qty
	}

	sold := make(map[string]soldLine)
	for _, d := range sale.Details {
		line := sold[d.ProductCode]
		line.name = d.ProductName
		line.qty += d.Qty
		line.amount = line.amount.Add(d.Amount)
		sold[d.ProductCode] = line
	}

	if _, err := lockOrderRow(tx, &Sale{}, originalNumber); err != nil {
		return nil, nil, err
	}

	var returned []struct {
		ProductCode string
		Qty         int
	}
	if err := tx.Model(&SalesReturnDetail{}).
		Select("sales_return_details.product_code AS product_code, SUM(sales_return_details.qty) AS qty").
		Joins("JOIN sales_returns ON sales_returns.order_number = sales_return_details.order_number").
		Where("sales_returns.original_order_number = ? AND sales_returns.order_number <> ?", originalNumber, excludeReturn).
		Group("sales_return_details.product_code").
		Scan(&returned).Error; err != nil {
		return nil, nil, err
	}
	alreadyReturned := make(map[string]int, len(returned))
	for _, r := range returned {
		alreadyReturned[r.ProductCode] = r.Qty
	}

	for code, qty := range requested {
		remaining := sold[code].qty - alreadyReturned[code]
		if qty > remaining {
			return nil, nil, newValidationError("return quantity %d for %s exceeds the %d remaining on sale %s", qty, code, remaining, originalNumber)
		}
	}
	return sale, sold, nil
}

func buildReturnDetails(details []NewSalesReturnDetail, sold map[string]soldLine) ([]SalesReturnDetail, decimal.Decimal, error) {
	total := decimal.Zero
	result := make([]SalesReturnDetail, 0, len(details))
	for i, d := range details {
		line := sold[d.ProductCode]
		original := line.netUnitPrice()
		unitPrice := original
		if d.UnitPrice != nil {
			unitPrice = *d.UnitPrice
		}
		amount := utils.RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(d.Qty))))
		if d.Amount != nil && !utils.RoundMoney(*d.Amount).Equal(amount) {
			return nil, decimal.Zero, newValidationError("line %d: amount %s does not match computed %s", i+1, d.Amount.StringFixed(2), amount.StringFixed(2))
		}
		result = append(result, SalesReturnDetail{
			LineNo:        i + 1,
			ProductCode:   d.ProductCode,
			ProductName:   line.name,
			Qty:           d.Qty,
			UnitPrice:     unitPrice,
			OriginalPrice: original,
			Amount:        amount,
		})
		total = total.Add(amount)
	}
	return result, total, nil
}

func insertReturnDetails(tx *gorm.DB, orderNumber string, details []SalesReturnDetail) error {
	for i := range details {
		item := &details[i]
		item.ID = 0
		item.OrderNumber = orderNumber
		if err := tx.Create(item).Error; err != nil {
			return err
		}
	}
	return nil
}

// restockReturnLines moves stock by the difference between the previous and the
// new lines of a return, one ledger entry per product whose quantity changed.
// Raising a return therefore never depends on stock that was resold since.
func restockReturnLines(tx *gorm.DB, operator Operator, orderNumber string, previous, current []SalesReturnDetail, reason string) error {
	net := make(map[string]int)
	prices := make(map[string]decimal.Decimal)
	var codes []string
	add := func(d SalesReturnDetail, qty int) {
		if _, seen := net[d.ProductCode]; !seen {
			codes = append(codes, d.ProductCode)
		}
		net[d.ProductCode] += qty
		prices[d.ProductCode] = d.UnitPrice
	}
	for _, d := range previous {
		add(d, -d.Qty)
	}
	for _, d := range current {
		add(d, d.Qty)
	}

	for _, code := range codes {
		delta := net[code]
		if delta == 0 {
			continue
		}
		unitPrice := prices[code]
		if _, _, err := ApplyStockChange(tx, StockChange{
			ProductCode: code,
			Delta:       delta,
			Operation:   StockOperationReturn,
			OperatorId:  operator.Id,
			OrderNumber: &orderNumber,
			UnitPrice:   &unitPrice,
			Reason:      reason,
		}); err != nil {
			if errors.Is(err, ErrNotFound) {
				return newInvariantViolation("returned product "+code+" no longer exists", err)
			}
			return err
		}
	}
	return nil
}

// CreateReturn books a return against an existing sale and restocks every line.
func CreateReturn(ctx context.Context, operator Operator, input *NewSalesReturn) (*SalesReturn, error) {
	ctx, span := startSpan(ctx, "CreateReturn", operator)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, endSpan(span, err)
	}

	var ret *SalesReturn
	_, err := orchestrate(ctx, OrderKindReturn, "CreateReturn", operator, input.OrderNumber, func(tx *gorm.DB, now time.Time) (string, error) {
		orderNumber, err := assignOrderNumber(tx, OrderKindReturn, operator, now, input.OrderNumber)
		if err != nil {
			return "", err
		}
		sale, sold, err := checkReturnAgainstSale(tx, input.OriginalOrderNumber, orderNumber, input.Details)
		if err != nil {
			return orderNumber, err
		}
		details, total, err := buildReturnDetails(input.Details, sold)
		if err != nil {
			return orderNumber, err
		}

		ret = &SalesReturn{
			OrderNumber:         orderNumber,
			OriginalOrderNumber: input.OriginalOrderNumber,
			ReturnDate:          now,
			CustomerName:        input.CustomerName,
			CustomerPhone:       input.CustomerPhone,
			OperatorId:          operator.Id,
			OperatorName:        operator.Name,
			CurrentStatus:       ReturnStatusCompleted,
			Reason:              input.Reason,
			TotalAmount:         total,
			RefundAmount:        total,
			RefundMethod:        input.RefundMethod,
			Notes:               input.Notes,
		}
		if input.ReturnDate != nil {
			ret.ReturnDate = *input.ReturnDate
		}
		if ret.CustomerName == "" {
			ret.CustomerName = sale.CustomerName
			ret.CustomerPhone = sale.CustomerPhone
		}

		if err := tx.Omit(clause.Associations).Create(ret).Error; err != nil {
			return orderNumber, recordInsertError(orderNumber, err)
		}
		if err := insertReturnDetails(tx, orderNumber, details); err != nil {
			return orderNumber, err
		}
		if err := restockReturnLines(tx, operator, orderNumber, nil, details, ""); err != nil {
			return orderNumber, err
		}
		ret.Details = details
		return orderNumber, recordOrderEvent(tx, OrderKindReturn, orderNumber, OrderEventCreated, operator, ret)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreateReturn", "return", input, err)
		return nil, endSpan(span, err)
	}
	return ret, nil
}

// UpdateReturn rewrites a completed return. Stock moves by the net change per
// product between the old and new lines, all in one transaction.
func UpdateReturn(ctx context.Context, operator Operator, orderNumber string, input *NewSalesReturn) (*SalesReturn, error) {
	ctx, span := startSpan(ctx, "UpdateReturn", operator)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, endSpan(span, err)
	}

	err := mutate(ctx, OrderKindReturn, "UpdateReturn", orderNumber, func(tx *gorm.DB) error {
		status, err := lockOrderRow(tx, &SalesReturn{}, orderNumber)
		if err != nil {
			return err
		}
		if ReturnStatus(status) != ReturnStatusCompleted {
			return newValidationError("return %s is %s and can no longer be edited", orderNumber, status)
		}
		existing, err := getOrder[SalesReturn](tx.Statement.Context, tx, OrderKindReturn, orderNumber)
		if err != nil {
			return err
		}
		if input.OriginalOrderNumber != "" && input.OriginalOrderNumber != existing.OriginalOrderNumber {
			return newInvalidReturnReference("return %s belongs to sale %s", orderNumber, existing.OriginalOrderNumber)
		}

		_, sold, err := checkReturnAgainstSale(tx, existing.OriginalOrderNumber, orderNumber, input.Details)
		if err != nil {
			return err
		}
		details, total, err := buildReturnDetails(input.Details, sold)
		if err != nil {
			return err
		}

		// every product on the old lines must still exist, even when its quantity is unchanged
		for _, old := range existing.Details {
			exists, err := productExists(tx, old.ProductCode)
			if err != nil {
				return err
			}
			if !exists {
				return newInvariantViolation("returned product "+old.ProductCode+" no longer exists", nil)
			}
		}
		if err := tx.Where("order_number = ?", orderNumber).Delete(&SalesReturnDetail{}).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"reason":        input.Reason,
			"refund_method": input.RefundMethod,
			"notes":         input.Notes,
			"total_amount":  total,
			"refund_amount": total,
		}
		if input.CustomerName != "" {
			updates["customer_name"] = input.CustomerName
			updates["customer_phone"] = input.CustomerPhone
		}
		if input.ReturnDate != nil {
			updates["return_date"] = *input.ReturnDate
		}
		if err := tx.Model(&SalesReturn{}).Where("order_number = ?", orderNumber).Updates(updates).Error; err != nil {
			return err
		}
		if err := insertReturnDetails(tx, orderNumber, details); err != nil {
			return err
		}
		if err := restockReturnLines(tx, operator, orderNumber, existing.Details, details, "return updated"); err != nil {
			return err
		}
		return recordOrderEvent(tx, OrderKindReturn, orderNumber, OrderEventUpdated, operator, details)
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return GetReturn(ctx, orderNumber)
}

// UpdateReturnStatus marks a completed return as refunded.
func UpdateReturnStatus(ctx context.Context, operator Operator, orderNumber string, status ReturnStatus) (*SalesReturn, error) {
	ctx, span := startSpan(ctx, "UpdateReturnStatus", operator)
	defer span.End()

	if status != ReturnStatusRefunded {
		return nil, endSpan(span, newValidationError("return cannot be moved to %q", status))
	}
	err := mutate(ctx, OrderKindReturn, "UpdateReturnStatus", orderNumber, func(tx *gorm.DB) error {
		if err := transitionStatus(tx, &SalesReturn{}, orderNumber, []string{string(ReturnStatusCompleted)}, string(status), map[string]interface{}{
			"refunded_at": time.Now().UTC(),
		}); err != nil {
			return err
		}
		return recordOrderEvent(tx, OrderKindReturn, orderNumber, OrderEventStatusChanged, operator, map[string]string{"current_status": string(status)})
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return GetReturn(ctx, orderNumber)
}
