package models

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseOrder covers both direct purchases, which are received on creation,
// and deferred orders that receive stock only when completed.
type PurchaseOrder struct {
	OrderNumber          string                `gorm:"primaryKey;size:50" json:"order_number"`
	OrderDate            time.Time             `gorm:"index;not null" json:"order_date"`
	ExpectedDeliveryDate *time.Time            `json:"expected_delivery_date"`
	SupplierName         string                `gorm:"size:255;index" json:"supplier_name"`
	SupplierPhone        string                `gorm:"size:30" json:"supplier_phone"`
	OperatorId           string                `gorm:"size:100;index" json:"operator_id"`
	OperatorName         string                `gorm:"size:100" json:"operator_name"`
	IsDirect             bool                  `gorm:"not null;default:false" json:"is_direct"`
	CurrentStatus        PurchaseOrderStatus   `gorm:"size:20;index;not null" json:"current_status"`
	Subtotal             decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	TaxAmount            decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	FinalAmount          decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"final_amount"`
	PaymentMethod        string                `gorm:"size:50" json:"payment_method"`
	PaidAmount           decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	Notes                string                `gorm:"type:text" json:"notes"`
	ApprovedAt           *time.Time            `json:"approved_at"`
	DeliveredAt          *time.Time            `json:"delivered_at"`
	CompletedAt          *time.Time            `json:"completed_at"`
	CancelledAt          *time.Time            `json:"cancelled_at"`
	Details              []PurchaseOrderDetail `gorm:"foreignKey:OrderNumber;references:OrderNumber" json:"details"`
	CreatedAt            time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID          int              `gorm:"primary_key" json:"id"`
	OrderNumber string           `gorm:"size:50;index;not null" json:"order_number"`
	LineNo      int              `gorm:"not null" json:"line_no"`
	ProductCode string           `gorm:"size:50;index;not null" json:"product_code"`
	ProductName string           `gorm:"size:255" json:"product_name"`
	Unit        string           `gorm:"size:20" json:"unit"`
	Category    string           `gorm:"size:100" json:"category"`
	Qty         int              `gorm:"not null" json:"qty"`
	UnitPrice   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	SalePrice   *decimal.Decimal `gorm:"type:decimal(20,4)" json:"sale_price"`
	Amount      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

func (po PurchaseOrder) GetCursor() string {
	return po.OrderNumber
}

type NewPurchaseOrder struct {
	OrderNumber          string                   `json:"order_number" validate:"max=50"`
	OrderDate            *time.Time               `json:"order_date"`
	ExpectedDeliveryDate *time.Time               `json:"expected_delivery_date"`
	SupplierName         string                   `json:"supplier_name" validate:"max=255"`
	SupplierPhone        string                   `json:"supplier_phone"`
	PaymentMethod        string                   `json:"payment_method" validate:"max=50"`
	PaidAmount           *decimal.Decimal         `json:"paid_amount"`
	TaxAmount            decimal.Decimal          `json:"tax_amount"`
	DeclaredTotal        *decimal.Decimal         `json:"declared_total"`
	Notes                string                   `json:"notes"`
	Details              []NewPurchaseOrderDetail `json:"details" validate:"required,min=1,dive"`
}

type NewPurchaseOrderDetail struct {
	ProductCode string           `json:"product_code" validate:"required,max=50"`
	ProductName string           `json:"product_name" validate:"max=255"`
	Unit        string           `json:"unit" validate:"max=20"`
	Category    string           `json:"category" validate:"max=100"`
	Qty         int              `json:"qty" validate:"gt=0"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	SalePrice   *decimal.Decimal `json:"sale_price"`
	Amount      *decimal.Decimal `json:"amount"`
}

func (input *NewPurchaseOrder) validate() error {
	input.OrderNumber = strings.TrimSpace(input.OrderNumber)
	input.SupplierName = strings.TrimSpace(input.SupplierName)
	if err := validateInput(input); err != nil {
		return err
	}
	phone, err := normalizePhone(input.SupplierPhone)
	if err != nil {
		return err
	}
	input.SupplierPhone = phone

	if input.TaxAmount.IsNegative() {
		return newValidationError("tax amount must not be negative")
	}
	if input.PaidAmount != nil && input.PaidAmount.IsNegative() {
		return newValidationError("paid amount must not be negative")
	}
	for i := range input.Details {
		d := &input.Details[i]
		d.ProductCode = strings.TrimSpace(d.ProductCode)
		d.ProductName = strings.TrimSpace(d.ProductName)
		if d.UnitPrice.IsNegative() {
			return newValidationError("line %d: unit price must not be negative", i+1)
		}
		if d.SalePrice != nil && d.SalePrice.IsNegative() {
			return newValidationError("line %d: sale price must not be negative", i+1)
		}
	}
	return nil
}

// buildPurchaseOrder computes line amounts and totals. Header identity and
// status are left to the caller.
func buildPurchaseOrder(input *NewPurchaseOrder) (*PurchaseOrder, error) {
	po := &PurchaseOrder{
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		SupplierName:         input.SupplierName,
		SupplierPhone:        input.SupplierPhone,
		PaymentMethod:        input.PaymentMethod,
		TaxAmount:            utils.RoundMoney(input.TaxAmount),
		Notes:                input.Notes,
	}
	for i, d := range input.Details {
		amount := utils.RoundMoney(d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Qty))))
		if d.Amount != nil && !utils.RoundMoney(*d.Amount).Equal(amount) {
			return nil, newValidationError("line %d: amount %s does not match computed %s", i+1, d.Amount.StringFixed(2), amount.StringFixed(2))
		}
		po.Details = append(po.Details, PurchaseOrderDetail{
			LineNo:      i + 1,
			ProductCode: d.ProductCode,
			ProductName: d.ProductName,
			Unit:        d.Unit,
			Category:    d.Category,
			Qty:         d.Qty,
			UnitPrice:   d.UnitPrice,
			SalePrice:   d.SalePrice,
			Amount:      amount,
		})
		po.Subtotal = po.Subtotal.Add(amount)
	}
	po.FinalAmount = utils.RoundMoney(po.Subtotal.Add(po.TaxAmount))
	if input.DeclaredTotal != nil && !utils.RoundMoney(*input.DeclaredTotal).Equal(po.FinalAmount) {
		return nil, newValidationError("declared total %s does not match computed %s", input.DeclaredTotal.StringFixed(2), po.FinalAmount.StringFixed(2))
	}
	if input.PaidAmount != nil {
		po.PaidAmount = utils.RoundMoney(*input.PaidAmount)
	}
	return po, nil
}

func insertPurchaseOrder(tx *gorm.DB, po *PurchaseOrder) error {
	if err := tx.Omit(clause.Associations).Create(po).Error; err != nil {
		return recordInsertError(po.OrderNumber, err)
	}
	return nil
}

func insertPurchaseOrderDetail(tx *gorm.DB, po *PurchaseOrder, item *PurchaseOrderDetail) error {
	item.ID = 0
	item.OrderNumber = po.OrderNumber
	return tx.Create(item).Error
}

const productCreateSavepoint = "sp_product_create"

// createProductFromPurchase inserts a zero-stock product for a purchase line.
// It returns false when a concurrent purchase created the product first.
func createProductFromPurchase(tx *gorm.DB, po *PurchaseOrder, item *PurchaseOrderDetail) (bool, error) {
	product := Product{
		Code:              item.ProductCode,
		Name:              item.ProductName,
		PurchasePrice:     item.UnitPrice,
		SalePrice:         utils.RoundMoney(item.UnitPrice.Mul(config.PurchaseDefaultMarkup())),
		Unit:              item.Unit,
		Category:          item.Category,
		LowStockThreshold: config.ProductDefaultLowStock(),
		SupplierRef:       po.SupplierName,
		LastUpdated:       time.Now().UTC(),
	}
	if product.Name == "" {
		product.Name = item.ProductCode
	}
	if item.SalePrice != nil {
		product.SalePrice = *item.SalePrice
	}
	if product.Unit == "" {
		product.Unit = config.ProductDefaultUnit()
	}
	if product.Category == "" {
		product.Category = config.ProductDefaultCategory()
	}

	if err := tx.SavePoint(productCreateSavepoint).Error; err != nil {
		return false, err
	}
	if err := tx.Create(&product).Error; err != nil {
		if !isDuplicateKeyError(err) {
			return false, newInvariantViolation("create product "+item.ProductCode+" from purchase", err)
		}
		if rbErr := tx.RollbackTo(productCreateSavepoint).Error; rbErr != nil {
			return false, rbErr
		}
		return false, nil
	}
	return true, nil
}

// receivePurchaseItem credits stock for one purchase line, creating the
// product when it does not exist yet.
func receivePurchaseItem(tx *gorm.DB, operator Operator, po *PurchaseOrder, item *PurchaseOrderDetail) error {
	exists, err := productExists(tx, item.ProductCode)
	if err != nil {
		return err
	}
	lostRace := false
	if !exists {
		created, err := createProductFromPurchase(tx, po, item)
		if err != nil {
			return err
		}
		lostRace = !created
	}

	orderNumber := po.OrderNumber
	price := item.UnitPrice
	_, _, err = ApplyStockChange(tx, StockChange{
		ProductCode:   item.ProductCode,
		Delta:         item.Qty,
		Operation:     StockOperationPurchase,
		OperatorId:    operator.Id,
		OrderNumber:   &orderNumber,
		UnitPrice:     &price,
		PurchasePrice: &price,
	})
	if err != nil && lostRace && errors.Is(err, ErrNotFound) {
		return newInvariantViolation("product "+item.ProductCode+" vanished after duplicate create", err)
	}
	return err
}

// CreatePurchase records a direct purchase and receives every line immediately.
func CreatePurchase(ctx context.Context, operator Operator, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	ctx, span := startSpan(ctx, "CreatePurchase", operator)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, endSpan(span, err)
	}

	var po *PurchaseOrder
	_, err := orchestrate(ctx, OrderKindPurchase, "CreatePurchase", operator, input.OrderNumber, func(tx *gorm.DB, now time.Time) (string, error) {
		orderNumber, err := assignOrderNumber(tx, OrderKindPurchase, operator, now, input.OrderNumber)
		if err != nil {
			return "", err
		}
		po, err = buildPurchaseOrder(input)
		if err != nil {
			return orderNumber, err
		}
		completedAt := now.UTC()
		po.OrderNumber = orderNumber
		po.OrderDate = now
		if input.OrderDate != nil {
			po.OrderDate = *input.OrderDate
		}
		po.OperatorId = operator.Id
		po.OperatorName = operator.Name
		po.IsDirect = true
		po.CurrentStatus = PurchaseOrderStatusCompleted
		po.CompletedAt = &completedAt
		if input.PaidAmount == nil {
			po.PaidAmount = po.FinalAmount
		}

		if err := insertPurchaseOrder(tx, po); err != nil {
			return orderNumber, err
		}
		for i := range po.Details {
			item := &po.Details[i]
			if err := insertPurchaseOrderDetail(tx, po, item); err != nil {
				return orderNumber, err
			}
			if err := receivePurchaseItem(tx, operator, po, item); err != nil {
				return orderNumber, err
			}
		}
		return orderNumber, recordOrderEvent(tx, OrderKindPurchase, orderNumber, OrderEventCreated, operator, po)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreatePurchase", "purchase", input, err)
		return nil, endSpan(span, err)
	}
	return po, nil
}

// CreatePurchaseOrder records a pending order. Stock is untouched until CompletePurchaseOrder.
func CreatePurchaseOrder(ctx context.Context, operator Operator, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	ctx, span := startSpan(ctx, "CreatePurchaseOrder", operator)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, endSpan(span, err)
	}

	var po *PurchaseOrder
	_, err := orchestrate(ctx, OrderKindPurchase, "CreatePurchaseOrder", operator, input.OrderNumber, func(tx *gorm.DB, now time.Time) (string, error) {
		orderNumber, err := assignOrderNumber(tx, OrderKindPurchase, operator, now, input.OrderNumber)
		if err != nil {
			return "", err
		}
		po, err = buildPurchaseOrder(input)
		if err != nil {
			return orderNumber, err
		}
		po.OrderNumber = orderNumber
		po.OrderDate = now
		if input.OrderDate != nil {
			po.OrderDate = *input.OrderDate
		}
		po.OperatorId = operator.Id
		po.OperatorName = operator.Name
		po.CurrentStatus = PurchaseOrderStatusPending

		if err := insertPurchaseOrder(tx, po); err != nil {
			return orderNumber, err
		}
		for i := range po.Details {
			if err := insertPurchaseOrderDetail(tx, po, &po.Details[i]); err != nil {
				return orderNumber, err
			}
		}
		return orderNumber, recordOrderEvent(tx, OrderKindPurchase, orderNumber, OrderEventCreated, operator, po)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreatePurchaseOrder", "purchase order", input, err)
		return nil, endSpan(span, err)
	}
	return po, nil
}

var purchaseOrderEditable = []string{string(PurchaseOrderStatusPending), string(PurchaseOrderStatusApproved)}

// UpdatePurchaseOrder rewrites an open order's header and lines.
func UpdatePurchaseOrder(ctx context.Context, operator Operator, orderNumber string, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	ctx, span := startSpan(ctx, "UpdatePurchaseOrder", operator)
	defer span.End()

	input.OrderNumber = ""
	if err := input.validate(); err != nil {
		return nil, endSpan(span, err)
	}
	updated, err := buildPurchaseOrder(input)
	if err != nil {
		return nil, endSpan(span, err)
	}

	err = mutate(ctx, OrderKindPurchase, "UpdatePurchaseOrder", orderNumber, func(tx *gorm.DB) error {
		status, err := lockOrderRow(tx, &PurchaseOrder{}, orderNumber)
		if err != nil {
			return err
		}
		if !slices.Contains(purchaseOrderEditable, status) {
			return newValidationError("purchase order %s is %s and can no longer be edited", orderNumber, status)
		}
		updates := map[string]interface{}{
			"expected_delivery_date": updated.ExpectedDeliveryDate,
			"supplier_name":          updated.SupplierName,
			"supplier_phone":         updated.SupplierPhone,
			"payment_method":         updated.PaymentMethod,
			"paid_amount":            updated.PaidAmount,
			"subtotal":               updated.Subtotal,
			"tax_amount":             updated.TaxAmount,
			"final_amount":           updated.FinalAmount,
			"notes":                  updated.Notes,
		}
		if input.OrderDate != nil {
			updates["order_date"] = *input.OrderDate
		}
		if err := tx.Model(&PurchaseOrder{}).Where("order_number = ?", orderNumber).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("order_number = ?", orderNumber).Delete(&PurchaseOrderDetail{}).Error; err != nil {
			return err
		}
		updated.OrderNumber = orderNumber
		for i := range updated.Details {
			if err := insertPurchaseOrderDetail(tx, updated, &updated.Details[i]); err != nil {
				return err
			}
		}
		return recordOrderEvent(tx, OrderKindPurchase, orderNumber, OrderEventUpdated, operator, updated)
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return GetPurchaseOrder(ctx, orderNumber)
}

func changePurchaseOrderStatus(ctx context.Context, operator Operator, funcName string, orderNumber string, from []PurchaseOrderStatus, to PurchaseOrderStatus, stampColumn string, receive bool) (*PurchaseOrder, error) {
	ctx, span := startSpan(ctx, funcName, operator)
	defer span.End()

	fromStatuses := make([]string, 0, len(from))
	for _, s := range from {
		fromStatuses = append(fromStatuses, string(s))
	}

	err := mutate(ctx, OrderKindPurchase, funcName, orderNumber, func(tx *gorm.DB) error {
		if err := transitionStatus(tx, &PurchaseOrder{}, orderNumber, fromStatuses, string(to), map[string]interface{}{
			stampColumn: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if receive {
			po, err := getOrder[PurchaseOrder](tx.Statement.Context, tx, OrderKindPurchase, orderNumber)
			if err != nil {
				return err
			}
			for i := range po.Details {
				if err := receivePurchaseItem(tx, operator, po, &po.Details[i]); err != nil {
					return err
				}
			}
		}
		return recordOrderEvent(tx, OrderKindPurchase, orderNumber, OrderEventStatusChanged, operator, map[string]string{"current_status": string(to)})
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return GetPurchaseOrder(ctx, orderNumber)
}

func ApprovePurchaseOrder(ctx context.Context, operator Operator, orderNumber string) (*PurchaseOrder, error) {
	return changePurchaseOrderStatus(ctx, operator, "ApprovePurchaseOrder", orderNumber,
		[]PurchaseOrderStatus{PurchaseOrderStatusPending}, PurchaseOrderStatusApproved, "approved_at", false)
}

func DeliverPurchaseOrder(ctx context.Context, operator Operator, orderNumber string) (*PurchaseOrder, error) {
	return changePurchaseOrderStatus(ctx, operator, "DeliverPurchaseOrder", orderNumber,
		[]PurchaseOrderStatus{PurchaseOrderStatusApproved}, PurchaseOrderStatusDelivered, "delivered_at", false)
}

// CompletePurchaseOrder receives every line of an approved or delivered order.
func CompletePurchaseOrder(ctx context.Context, operator Operator, orderNumber string) (*PurchaseOrder, error) {
	return changePurchaseOrderStatus(ctx, operator, "CompletePurchaseOrder", orderNumber,
		[]PurchaseOrderStatus{PurchaseOrderStatusApproved, PurchaseOrderStatusDelivered}, PurchaseOrderStatusCompleted, "completed_at", true)
}

func CancelPurchaseOrder(ctx context.Context, operator Operator, orderNumber string) (*PurchaseOrder, error) {
	return changePurchaseOrderStatus(ctx, operator, "CancelPurchaseOrder", orderNumber,
		[]PurchaseOrderStatus{PurchaseOrderStatusPending, PurchaseOrderStatusApproved}, PurchaseOrderStatusCancelled, "cancelled_at", false)
}
