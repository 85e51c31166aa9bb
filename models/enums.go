package models

import (
	"errors"

	"bitbucket.org/mmdatafocus/trade_backend/config"
)

type OrderKind string

const (
	OrderKindSale     OrderKind = "Sale"
	OrderKindPurchase OrderKind = "Purchase"
	OrderKindReturn   OrderKind = "Return"
)

func (k OrderKind) IsValid() bool {
	switch k {
	case OrderKindSale, OrderKindPurchase, OrderKindReturn:
		return true
	}
	return false
}

// Prefix is the leading part of every order number of this kind.
func (k OrderKind) Prefix() string {
	switch k {
	case OrderKindSale:
		return config.OrderPrefix("SALE", "SL")
	case OrderKindPurchase:
		return config.OrderPrefix("PURCHASE", "PO")
	case OrderKindReturn:
		return config.OrderPrefix("RETURN", "RT")
	}
	return ""
}

type StockOperationKind string

const (
	StockOperationPurchase         StockOperationKind = "Purchase"
	StockOperationSale             StockOperationKind = "Sale"
	StockOperationReturn           StockOperationKind = "Return"
	StockOperationManualAdjustment StockOperationKind = "ManualAdjustment"
)

func (s StockOperationKind) IsValid() bool {
	switch s {
	case StockOperationPurchase, StockOperationSale, StockOperationReturn, StockOperationManualAdjustment:
		return true
	}
	return false
}

type SaleStatus string

const (
	SaleStatusUnpaid SaleStatus = "Unpaid"
	SaleStatusPaid   SaleStatus = "Paid"
	SaleStatusClosed SaleStatus = "Closed"
)

func (s *SaleStatus) UnmarshalText(text []byte) error {
	saleStatus := map[string]SaleStatus{
		"Unpaid": SaleStatusUnpaid,
		"Paid":   SaleStatusPaid,
		"Closed": SaleStatusClosed,
	}
	v, ok := saleStatus[string(text)]
	if !ok {
		return errors.New("invalid sale status")
	}
	*s = v
	return nil
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusPending   PurchaseOrderStatus = "Pending"
	PurchaseOrderStatusApproved  PurchaseOrderStatus = "Approved"
	PurchaseOrderStatusDelivered PurchaseOrderStatus = "Delivered"
	PurchaseOrderStatusCompleted PurchaseOrderStatus = "Completed"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "Cancelled"
)

func (s *PurchaseOrderStatus) UnmarshalText(text []byte) error {
	purchaseOrderStatus := map[string]PurchaseOrderStatus{
		"Pending":   PurchaseOrderStatusPending,
		"Approved":  PurchaseOrderStatusApproved,
		"Delivered": PurchaseOrderStatusDelivered,
		"Completed": PurchaseOrderStatusCompleted,
		"Cancelled": PurchaseOrderStatusCancelled,
	}
	v, ok := purchaseOrderStatus[string(text)]
	if !ok {
		return errors.New("invalid purchase order status")
	}
	*s = v
	return nil
}

type ReturnStatus string

const (
	ReturnStatusCompleted ReturnStatus = "Completed"
	ReturnStatusRefunded  ReturnStatus = "Refunded"
)

func (s *ReturnStatus) UnmarshalText(text []byte) error {
	returnStatus := map[string]ReturnStatus{
		"Completed": ReturnStatusCompleted,
		"Refunded":  ReturnStatusRefunded,
	}
	v, ok := returnStatus[string(text)]
	if !ok {
		return errors.New("invalid return status")
	}
	*s = v
	return nil
}

type OrderEventAction string

const (
	OrderEventCreated       OrderEventAction = "Created"
	OrderEventUpdated       OrderEventAction = "Updated"
	OrderEventStatusChanged OrderEventAction = "StatusChanged"
)
