package models

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSaleDebitsStockAndRecordsHistory(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "P001", 100, "10")

	sale := sellOne(t, "P001", 5)

	assert.True(t, strings.HasPrefix(sale.OrderNumber, "SL"), sale.OrderNumber)
	assert.True(t, strings.HasSuffix(sale.OrderNumber, "0042"), sale.OrderNumber)
	assert.Equal(t, SaleStatusPaid, sale.CurrentStatus)
	assert.True(t, sale.FinalAmount.Equal(decimal.NewFromInt(50)), sale.FinalAmount.String())
	assert.Equal(t, 95, quantityOf(t, "P001"))

	histories := historiesForOrder(t, sale.OrderNumber)
	require.Len(t, histories, 1)
	assert.Equal(t, -5, histories[0].Delta)
	assert.Equal(t, 95, histories[0].QuantityAfter)
	assert.Equal(t, StockOperationSale, histories[0].Operation)
	assert.Equal(t, "42", histories[0].OperatorId)

	stored, err := GetSale(context.Background(), sale.OrderNumber)
	require.NoError(t, err)
	require.Len(t, stored.Details, 1)
	assert.Equal(t, "Product P001", stored.Details[0].ProductName)
	assert.Equal(t, 1, stored.Details[0].LineNo)
}

func TestCreateSaleInsufficientStockLeavesNothingBehind(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 100, "10")

	_, err := CreateSale(context.Background(), testOperator, &NewSale{
		Details: []NewSaleDetail{{ProductCode: "P001", Qty: 150}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	var detail *InsufficientStockError
	require.True(t, errors.As(err, &detail))
	assert.Equal(t, "P001", detail.ProductCode)
	assert.Equal(t, 150, detail.Requested)
	assert.Equal(t, 100, detail.Available)

	assert.Equal(t, 100, quantityOf(t, "P001"))
	assert.Zero(t, countRows(t, db, &Sale{}))
	assert.Zero(t, countRows(t, db, &SaleDetail{}))
	// only the opening stock entry
	assert.EqualValues(t, 1, countRows(t, db, &InventoryHistory{}))
}

func TestCreateSaleRollsBackEarlierLinesWhenALaterLineFails(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 100, "10")
	seedProduct(t, "P002", 2, "4")

	_, err := CreateSale(context.Background(), testOperator, &NewSale{
		Details: []NewSaleDetail{
			{ProductCode: "P001", Qty: 5},
			{ProductCode: "P002", Qty: 3},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 100, quantityOf(t, "P001"))
	assert.Equal(t, 2, quantityOf(t, "P002"))
	assert.Zero(t, countRows(t, db, &Sale{}))
	assert.EqualValues(t, 2, countRows(t, db, &InventoryHistory{}))
}

func TestCreateSaleValidation(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "P001", 100, "10")
	ctx := context.Background()

	tests := []struct {
		name  string
		input NewSale
	}{
		{"no lines", NewSale{}},
		{"zero quantity", NewSale{Details: []NewSaleDetail{{ProductCode: "P001", Qty: 0}}}},
		{"unknown product", NewSale{Details: []NewSaleDetail{{ProductCode: "NOPE", Qty: 1}}}},
		{"bad phone", NewSale{CustomerPhone: "not a phone", Details: []NewSaleDetail{{ProductCode: "P001", Qty: 1}}}},
		{"discount rate above 100", NewSale{Details: []NewSaleDetail{{ProductCode: "P001", Qty: 1, DiscountRate: decimal.NewFromInt(101)}}}},
		{"declared amount mismatch", NewSale{Details: []NewSaleDetail{{ProductCode: "P001", Qty: 2, Amount: decimalPtr("19")}}}},
		{"declared total mismatch", NewSale{DeclaredTotal: decimalPtr("1"), Details: []NewSaleDetail{{ProductCode: "P001", Qty: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			_, err := CreateSale(ctx, testOperator, &input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Equal(t, 100, quantityOf(t, "P001"))
}

func TestCreateSalePricing(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "P001", 100, "10")

	sale, err := CreateSale(context.Background(), testOperator, &NewSale{
		OrderDiscount: decimal.NewFromInt(5),
		PaidAmount:    decimalPtr("100"),
		Details: []NewSaleDetail{
			{ProductCode: "P001", Qty: 4, DiscountRate: decimal.NewFromInt(10), Amount: decimalPtr("36")},
			{ProductCode: "P001", Qty: 1, UnitPrice: decimalPtr("12.5")},
		},
	})
	require.NoError(t, err)

	assert.True(t, sale.Subtotal.Equal(decimal.RequireFromString("48.5")), sale.Subtotal.String())
	assert.True(t, sale.DiscountAmount.Equal(decimal.NewFromInt(4)), sale.DiscountAmount.String())
	assert.True(t, sale.FinalAmount.Equal(decimal.RequireFromString("43.5")), sale.FinalAmount.String())
	assert.True(t, sale.ChangeAmount.Equal(decimal.RequireFromString("56.5")), sale.ChangeAmount.String())
	assert.Equal(t, 95, quantityOf(t, "P001"))
	assert.Len(t, historiesForOrder(t, sale.OrderNumber), 2)
}

func TestCreateSaleRetriesOnceWhenGeneratedNumberIsTaken(t *testing.T) {
	db := setupTestDB(t)
	seedProduct(t, "P001", 100, "10")
	ctx := context.Background()

	_, err := CreateSale(ctx, testOperator, &NewSale{OrderNumber: "SLTAKEN", Details: []NewSaleDetail{{ProductCode: "P001", Qty: 1}}})
	require.NoError(t, err)

	calls := 0
	original := generateOrderNumber
	generateOrderNumber = func(ctx context.Context, prober OrderNumberProber, kind OrderKind, now time.Time, operatorId string) (string, error) {
		calls++
		if calls == 1 {
			// the probe raced and missed the existing row
			return "SLTAKEN", nil
		}
		return "SLFRESH", nil
	}
	t.Cleanup(func() { generateOrderNumber = original })

	sale := sellOne(t, "P001", 2)
	assert.Equal(t, "SLFRESH", sale.OrderNumber)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 97, quantityOf(t, "P001"))
	assert.EqualValues(t, 2, countRows(t, db, &Sale{}))
}

func TestCreateSaleWithTakenCallerNumberFails(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "P001", 100, "10")
	ctx := context.Background()

	input := func() *NewSale {
		return &NewSale{OrderNumber: "SL-MANUAL-1", Details: []NewSaleDetail{{ProductCode: "P001", Qty: 1}}}
	}
	_, err := CreateSale(ctx, testOperator, input())
	require.NoError(t, err)

	_, err = CreateSale(ctx, testOperator, input())
	require.ErrorIs(t, err, ErrDuplicateIdentifier)
	assert.Equal(t, 99, quantityOf(t, "P001"))
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "P001", 5, "10")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := CreateSale(context.Background(), testOperator, &NewSale{
				Details: []NewSaleDetail{{ProductCode: "P001", Qty: 3}},
			})
			mu.Lock()
			outcomes = append(outcomes, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range outcomes {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, quantityOf(t, "P001"))
}

func TestSaleStatusAndPayments(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "P001", 100, "10")
	ctx := context.Background()

	sale, err := CreateSale(ctx, testOperator, &NewSale{
		PaidAmount: decimalPtr("20"),
		Details:    []NewSaleDetail{{ProductCode: "P001", Qty: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, SaleStatusUnpaid, sale.CurrentStatus)

	_, err = RecordSalePayment(ctx, testOperator, sale.OrderNumber, &NewSalePayment{Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrValidation)

	paid, err := RecordSalePayment(ctx, testOperator, sale.OrderNumber, &NewSalePayment{Amount: decimal.NewFromInt(35), PaymentMethod: "Cash"})
	require.NoError(t, err)
	assert.Equal(t, SaleStatusPaid, paid.CurrentStatus)
	assert.True(t, paid.ChangeAmount.Equal(decimal.NewFromInt(5)), paid.ChangeAmount.String())
	assert.Equal(t, "Cash", paid.PaymentMethod)

	_, err = RecordSalePayment(ctx, testOperator, sale.OrderNumber, &NewSalePayment{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidStatusChange)

	closed, err := UpdateSaleStatus(ctx, testOperator, sale.OrderNumber, SaleStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, SaleStatusClosed, closed.CurrentStatus)

	_, err = UpdateSaleStatus(ctx, testOperator, sale.OrderNumber, SaleStatusPaid)
	assert.ErrorIs(t, err, ErrInvalidStatusChange)

	_, err = UpdateSaleStatus(ctx, testOperator, sale.OrderNumber, SaleStatusUnpaid)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = UpdateSaleStatus(ctx, testOperator, "SL-MISSING", SaleStatusClosed)
	assert.ErrorIs(t, err, ErrNotFound)

	// status changes never move stock
	assert.Equal(t, 95, quantityOf(t, "P001"))
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
