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
)

type Product struct {
	Code              string          `gorm:"primaryKey;size:50" json:"code"`
	Name              string          `gorm:"size:255;not null" json:"name"`
	SalePrice         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sale_price"`
	PurchasePrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_price"`
	Quantity          int             `gorm:"not null;default:0;check:chk_products_quantity,quantity >= 0" json:"quantity"`
	Unit              string          `gorm:"size:20" json:"unit"`
	Category          string          `gorm:"size:100;index" json:"category"`
	LowStockThreshold int             `gorm:"not null;default:0" json:"low_stock_threshold"`
	SupplierRef       string          `gorm:"size:255" json:"supplier_ref"`
	LastUpdated       time.Time       `gorm:"not null" json:"last_updated"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewProduct struct {
	Code              string          `json:"code" validate:"required,max=50"`
	Name              string          `json:"name" validate:"required,max=255"`
	SalePrice         decimal.Decimal `json:"sale_price"`
	PurchasePrice     decimal.Decimal `json:"purchase_price"`
	Unit              string          `json:"unit" validate:"max=20"`
	Category          string          `json:"category" validate:"max=100"`
	LowStockThreshold *int            `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	SupplierRef       string          `json:"supplier_ref"`
	OpeningQuantity   int             `json:"opening_quantity" validate:"gte=0"`
}

func (input *NewProduct) validate() error {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return err
	}
	if input.SalePrice.IsNegative() || input.PurchasePrice.IsNegative() {
		return newValidationError("prices must not be negative")
	}
	return nil
}

// CreateProduct registers a product with zero stock; an opening quantity is
// booked through the ledger as a manual adjustment.
func CreateProduct(ctx context.Context, operator Operator, input *NewProduct) (*Product, error) {
	ctx, span := startSpan(ctx, "CreateProduct", operator)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, endSpan(span, err)
	}

	product := Product{
		Code:              input.Code,
		Name:              input.Name,
		SalePrice:         utils.RoundMoney(input.SalePrice),
		PurchasePrice:     utils.RoundMoney(input.PurchasePrice),
		Unit:              input.Unit,
		Category:          input.Category,
		LowStockThreshold: config.ProductDefaultLowStock(),
		SupplierRef:       input.SupplierRef,
	}
	if product.Unit == "" {
		product.Unit = config.ProductDefaultUnit()
	}
	if product.Category == "" {
		product.Category = config.ProductDefaultCategory()
	}
	if input.LowStockThreshold != nil {
		product.LowStockThreshold = *input.LowStockThreshold
	}

	err := runUnitOfWork(ctx, func(tx *gorm.DB) error {
		product.LastUpdated = time.Now().UTC()
		if err := tx.Create(&product).Error; err != nil {
			if isDuplicateKeyError(err) {
				return newValidationError("product %s already exists", product.Code)
			}
			return err
		}
		if input.OpeningQuantity > 0 {
			qty, _, err := ApplyStockChange(tx, StockChange{
				ProductCode: product.Code,
				Delta:       input.OpeningQuantity,
				Operation:   StockOperationManualAdjustment,
				OperatorId:  operator.Id,
				UnitPrice:   &product.PurchasePrice,
				Reason:      "opening stock",
			})
			if err != nil {
				return err
			}
			product.Quantity = qty
		}
		return nil
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreateProduct", "product", input, err)
		return nil, endSpan(span, err)
	}
	return &product, nil
}

func GetProduct(ctx context.Context, code string) (*Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newValidationError("product code is required")
	}
	var product Product
	err := config.GetDB().WithContext(ctx).Where("code = ?", code).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newNotFoundError("product %s not found", code)
	}
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return &product, nil
}

// GetLowStockProducts lists products at or below their low stock threshold.
func GetLowStockProducts(ctx context.Context) ([]*Product, error) {
	var products []*Product
	if err := config.GetDB().WithContext(ctx).
		Where("quantity <= low_stock_threshold").
		Order("quantity, code").
		Find(&products).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return products, nil
}

// loadProducts reads the given products through tx, keyed by code.
func loadProducts(tx *gorm.DB, codes []string) (map[string]*Product, error) {
	products := make(map[string]*Product)
	codes = utils.UniqueSlice(codes)
	if len(codes) == 0 {
		return products, nil
	}
	var rows []*Product
	if err := tx.Where("code IN ?", codes).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		products[p.Code] = p
	}
	return products, nil
}

func productExists(tx *gorm.DB, code string) (bool, error) {
	var count int64
	if err := tx.Model(&Product{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
