package models

import (
	"context"
	"errors"
	"strings"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"gorm.io/gorm"
)

// OrderStore answers existence questions about orders on a given handle.
// Inside an orchestrated operation the handle is the open transaction.
type OrderStore struct {
	db *gorm.DB
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

func orderModels(kind OrderKind) (header interface{}, detail interface{}, err error) {
	switch kind {
	case OrderKindSale:
		return &Sale{}, &SaleDetail{}, nil
	case OrderKindPurchase:
		return &PurchaseOrder{}, &PurchaseOrderDetail{}, nil
	case OrderKindReturn:
		return &SalesReturn{}, &SalesReturnDetail{}, nil
	}
	return nil, nil, newValidationError("invalid order kind %q", kind)
}

func (s *OrderStore) OrderNumberExists(ctx context.Context, kind OrderKind, orderNumber string) (bool, error) {
	header, _, err := orderModels(kind)
	if err != nil {
		return false, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(header).Where("order_number = ?", orderNumber).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *OrderStore) OrderItemBelongsToOrder(ctx context.Context, kind OrderKind, orderNumber string, productCode string) (bool, error) {
	_, detail, err := orderModels(kind)
	if err != nil {
		return false, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(detail).
		Where("order_number = ? AND product_code = ?", orderNumber, productCode).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func OrderNumberExists(ctx context.Context, kind OrderKind, orderNumber string) (bool, error) {
	exists, err := NewOrderStore(config.GetDB()).OrderNumberExists(ctx, kind, orderNumber)
	if err != nil {
		return false, classifyStoreError(err)
	}
	return exists, nil
}

func OrderItemBelongsToOrder(ctx context.Context, kind OrderKind, orderNumber string, productCode string) (bool, error) {
	exists, err := NewOrderStore(config.GetDB()).OrderItemBelongsToOrder(ctx, kind, orderNumber, productCode)
	if err != nil {
		return false, classifyStoreError(err)
	}
	return exists, nil
}

func preloadDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Details", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no")
	})
}

func getOrder[T any](ctx context.Context, db *gorm.DB, kind OrderKind, orderNumber string) (*T, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, newValidationError("order number is required")
	}
	var result T
	err := preloadDetails(db.WithContext(ctx)).Where("order_number = ?", orderNumber).Take(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newNotFoundError("%s %s not found", strings.ToLower(string(kind)), orderNumber)
	}
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return &result, nil
}

func GetSale(ctx context.Context, orderNumber string) (*Sale, error) {
	return getOrder[Sale](ctx, config.GetDB(), OrderKindSale, orderNumber)
}

func GetPurchaseOrder(ctx context.Context, orderNumber string) (*PurchaseOrder, error) {
	return getOrder[PurchaseOrder](ctx, config.GetDB(), OrderKindPurchase, orderNumber)
}

func GetReturn(ctx context.Context, orderNumber string) (*SalesReturn, error) {
	return getOrder[SalesReturn](ctx, config.GetDB(), OrderKindReturn, orderNumber)
}

func PaginateSales(ctx context.Context, filter OrderFilter) (*Connection[Sale], error) {
	dbCtx := filter.apply(config.GetDB().WithContext(ctx).Model(&Sale{}), "order_date", "customer_name")
	conn, err := FetchPagePureCursor[Sale](dbCtx, filter.pageSize(), filter.After, "order_number", "<")
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return conn, nil
}

func PaginatePurchaseOrders(ctx context.Context, filter OrderFilter) (*Connection[PurchaseOrder], error) {
	dbCtx := filter.apply(config.GetDB().WithContext(ctx).Model(&PurchaseOrder{}), "order_date", "supplier_name")
	conn, err := FetchPagePureCursor[PurchaseOrder](dbCtx, filter.pageSize(), filter.After, "order_number", "<")
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return conn, nil
}

func PaginateReturns(ctx context.Context, filter OrderFilter) (*Connection[SalesReturn], error) {
	dbCtx := filter.apply(config.GetDB().WithContext(ctx).Model(&SalesReturn{}), "return_date", "customer_name")
	conn, err := FetchPagePureCursor[SalesReturn](dbCtx, filter.pageSize(), filter.After, "order_number", "<")
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return conn, nil
}
