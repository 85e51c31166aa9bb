package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Sale struct {
	OrderNumber    string          `gorm:"primaryKey;size:50" json:"order_number"`
	OrderDate      time.Time       `gorm:"index;not null" json:"order_date"`
	CustomerName   string          `gorm:"size:255;index" json:"customer_name"`
	CustomerPhone  string          `gorm:"size:30" json:"customer_phone"`
	OperatorId     string          `gorm:"size:100;index" json:"operator_id"`
	OperatorName   string          `gorm:"size:100" json:"operator_name"`
	CurrentStatus  SaleStatus      `gorm:"size:20;index;not null" json:"current_status"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	OrderDiscount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"order_discount"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"final_amount"`
	PaymentMethod  string          `gorm:"size:50" json:"payment_method"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	ChangeAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"change_amount"`
	Notes          string          `gorm:"type:text" json:"notes"`
	Details        []SaleDetail    `gorm:"foreignKey:OrderNumber;references:OrderNumber" json:"details"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SaleDetail struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrderNumber    string          `gorm:"size:50;index;not null" json:"order_number"`
	LineNo         int             `gorm:"not null" json:"line_no"`
	ProductCode    string          `gorm:"size:50;index;not null" json:"product_code"`
	ProductName    string          `gorm:"size:255" json:"product_name"`
	Qty            int             `gorm:"not null" json:"qty"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	DiscountRate   decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"discount_rate"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

func (s Sale) GetCursor() string {
	return s.OrderNumber
}

type NewSale struct {
	OrderNumber   string           `json:"order_number" validate:"max=50"`
	OrderDate     *time.Time       `json:"order_date"`
	CustomerName  string           `json:"customer_name" validate:"max=255"`
	CustomerPhone string           `json:"customer_phone"`
	PaymentMethod string           `json:"payment_method" validate:"max=50"`
	PaidAmount    *decimal.Decimal `json:"paid_amount"`
	OrderDiscount decimal.Decimal  `json:"order_discount"`
	DeclaredTotal *decimal.Decimal `json:"declared_total"`
	Notes         string           `json:"notes"`
	Details       []NewSaleDetail  `json:"details" validate:"required,min=1,dive"`
}

type NewSaleDetail struct {
	ProductCode  string           `json:"product_code" validate:"required,max=50"`
	Qty          int              `json:"qty" validate:"gt=0"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	DiscountRate decimal.Decimal  `json:"discount_rate"`
	// when given, must equal the computed line amount
	Amount *decimal.Decimal `json:"amount"`
}

var hundred = decimal.NewFromInt(100)

func (input *NewSale) validate() error {
	input.OrderNumber = strings.TrimSpace(input.OrderNumber)
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	if err := validateInput(input); err != nil {
		return err
	}
	phone, err := normalizePhone(input.CustomerPhone)
	if err != nil {
		return err
	}
	input.CustomerPhone = phone

	if input.OrderDiscount.IsNegative() {
		return newValidationError("order discount must not be negative")
	}
	if input.PaidAmount != nil && input.PaidAmount.IsNegative() {
		return newValidationError("paid amount must not be negative")
	}
	for i := range input.Details {
		d := &input.Details[i]
		d.ProductCode = strings.TrimSpace(d.ProductCode)
		if d.UnitPrice != nil && d.UnitPrice.IsNegative() {
			return newValidationError("line %d: unit price must not be negative", i+1)
		}
		if d.DiscountRate.IsNegative() || d.DiscountRate.GreaterThan(hundred) {
			return newValidationError("line %d: discount rate must be between 0 and 100", i+1)
		}
	}
	return nil
}

// buildSale prices every line from the input or the product's sale price and
// checks caller-declared amounts against the computed ones.
func buildSale(input *NewSale, products map[string]*Product) (*Sale, error) {
	sale := &Sale{
		CustomerName:  input.CustomerName,
		CustomerPhone: input.CustomerPhone,
		PaymentMethod: input.PaymentMethod,
		Notes:         input.Notes,
	}

	for i, d := range input.Details {
		product, ok := products[d.ProductCode]
		if !ok {
			return nil, newValidationError("product %s not found", d.ProductCode)
		}
		unitPrice := product.SalePrice
		if d.UnitPrice != nil {
			unitPrice = *d.UnitPrice
		}
		gross := unitPrice.Mul(decimal.NewFromInt(int64(d.Qty)))
		discount := utils.CalculateDiscountAmount(gross, d.DiscountRate)
		amount := utils.RoundMoney(gross.Sub(discount))
		if d.Amount != nil && !utils.RoundMoney(*d.Amount).Equal(amount) {
			return nil, newValidationError("line %d: amount %s does not match computed %s", i+1, d.Amount.StringFixed(2), amount.StringFixed(2))
		}

		sale.Details = append(sale.Details, SaleDetail{
			LineNo:         i + 1,
			ProductCode:    d.ProductCode,
			ProductName:    product.Name,
			Qty:            d.Qty,
			UnitPrice:      unitPrice,
			DiscountRate:   d.DiscountRate,
			DiscountAmount: discount,
			Amount:         amount,
		})
		sale.Subtotal = sale.Subtotal.Add(amount)
		sale.DiscountAmount = sale.DiscountAmount.Add(discount)
	}

	if input.OrderDiscount.GreaterThan(sale.Subtotal) {
		return nil, newValidationError("order discount exceeds subtotal")
	}
	sale.OrderDiscount = utils.RoundMoney(input.OrderDiscount)
	sale.FinalAmount = utils.RoundMoney(sale.Subtotal.Sub(sale.OrderDiscount))
	if input.DeclaredTotal != nil && !utils.RoundMoney(*input.DeclaredTotal).Equal(sale.FinalAmount) {
		return nil, newValidationError("declared total %s does not match computed %s", input.DeclaredTotal.StringFixed(2), sale.FinalAmount.StringFixed(2))
	}

	sale.PaidAmount = sale.FinalAmount
	if input.PaidAmount != nil {
		sale.PaidAmount = utils.RoundMoney(*input.PaidAmount)
	}
	sale.settle()
	return sale, nil
}

// settle derives status and change from paid versus final amount.
func (s *Sale) settle() {
	if s.PaidAmount.GreaterThanOrEqual(s.FinalAmount) {
		s.CurrentStatus = SaleStatusPaid
		s.ChangeAmount = s.PaidAmount.Sub(s.FinalAmount)
	} else {
		s.CurrentStatus = SaleStatusUnpaid
		s.ChangeAmount = decimal.Zero
	}
}

func saleProductCodes(details []NewSaleDetail) []string {
	codes := make([]string, 0, len(details))
	for _, d := range details {
		codes = append(codes, d.ProductCode)
	}
	return codes
}

// CreateSale records a sale and debits stock for every line in one transaction.
func CreateSale(ctx context.Context, operator Operator, input *NewSale) (*Sale, error) {
	ctx, span := startSpan(ctx, "CreateSale", operator)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, endSpan(span, err)
	}

	var sale *Sale
	_, err := orchestrate(ctx, OrderKindSale, "CreateSale", operator, input.OrderNumber, func(tx *gorm.DB, now time.Time) (string, error) {
		orderNumber, err := assignOrderNumber(tx, OrderKindSale, operator, now, input.OrderNumber)
		if err != nil {
			return "", err
		}

		products, err := loadProducts(tx, saleProductCodes(input.Details))
		if err != nil {
			return orderNumber, err
		}
		sale, err = buildSale(input, products)
		if err != nil {
			return orderNumber, err
		}
		sale.OrderNumber = orderNumber
		sale.OrderDate = now
		if input.OrderDate != nil {
			sale.OrderDate = *input.OrderDate
		}
		sale.OperatorId = operator.Id
		sale.OperatorName = operator.Name

		if err := tx.Omit(clause.Associations).Create(sale).Error; err != nil {
			return orderNumber, recordInsertError(orderNumber, err)
		}
		for i := range sale.Details {
			item := &sale.Details[i]
			item.OrderNumber = orderNumber
			if err := tx.Create(item).Error; err != nil {
				return orderNumber, err
			}
			unitPrice := item.UnitPrice
			if _, _, err := ApplyStockChange(tx, StockChange{
				ProductCode: item.ProductCode,
				Delta:       -item.Qty,
				Operation:   StockOperationSale,
				OperatorId:  operator.Id,
				OrderNumber: &orderNumber,
				UnitPrice:   &unitPrice,
			}); err != nil {
				return orderNumber, err
			}
		}

		return orderNumber, recordOrderEvent(tx, OrderKindSale, orderNumber, OrderEventCreated, operator, sale)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreateSale", "sale", input, err)
		return nil, endSpan(span, err)
	}
	return sale, nil
}

var saleTransitions = map[SaleStatus][]string{
	SaleStatusPaid:   {string(SaleStatusUnpaid)},
	SaleStatusClosed: {string(SaleStatusUnpaid), string(SaleStatusPaid)},
}

// UpdateSaleStatus moves a sale along Unpaid -> Paid -> Closed. Status never touches stock.
func UpdateSaleStatus(ctx context.Context, operator Operator, orderNumber string, status SaleStatus) (*Sale, error) {
	ctx, span := startSpan(ctx, "UpdateSaleStatus", operator)
	defer span.End()

	from, ok := saleTransitions[status]
	if !ok {
		return nil, endSpan(span, newValidationError("sale cannot be moved to %q", status))
	}
	err := mutate(ctx, OrderKindSale, "UpdateSaleStatus", orderNumber, func(tx *gorm.DB) error {
		if err := transitionStatus(tx, &Sale{}, orderNumber, from, string(status), nil); err != nil {
			return err
		}
		return recordOrderEvent(tx, OrderKindSale, orderNumber, OrderEventStatusChanged, operator, map[string]string{"current_status": string(status)})
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return GetSale(ctx, orderNumber)
}

type NewSalePayment struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" validate:"max=50"`
}

// RecordSalePayment adds to an unpaid sale's paid amount and settles it once covered.
func RecordSalePayment(ctx context.Context, operator Operator, orderNumber string, input *NewSalePayment) (*Sale, error) {
	ctx, span := startSpan(ctx, "RecordSalePayment", operator)
	defer span.End()

	if err := validateInput(input); err != nil {
		return nil, endSpan(span, err)
	}
	if !input.Amount.IsPositive() {
		return nil, endSpan(span, newValidationError("payment amount must be positive"))
	}

	err := mutate(ctx, OrderKindSale, "RecordSalePayment", orderNumber, func(tx *gorm.DB) error {
		status, err := lockOrderRow(tx, &Sale{}, orderNumber)
		if err != nil {
			return err
		}
		if SaleStatus(status) != SaleStatusUnpaid {
			return newInvalidStatusChange(status, string(SaleStatusPaid))
		}
		var sale Sale
		if err := tx.Where("order_number = ?", orderNumber).Take(&sale).Error; err != nil {
			return err
		}
		sale.PaidAmount = utils.RoundMoney(sale.PaidAmount.Add(input.Amount))
		sale.settle()
		updates := map[string]interface{}{
			"paid_amount":    sale.PaidAmount,
			"change_amount":  sale.ChangeAmount,
			"current_status": sale.CurrentStatus,
		}
		if input.PaymentMethod != "" {
			updates["payment_method"] = input.PaymentMethod
		}
		if err := tx.Model(&Sale{}).Where("order_number = ?", orderNumber).Updates(updates).Error; err != nil {
			return err
		}
		return recordOrderEvent(tx, OrderKindSale, orderNumber, OrderEventUpdated, operator, updates)
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return GetSale(ctx, orderNumber)
}
