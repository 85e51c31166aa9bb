package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func envString(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// OrderPrefix returns the order number prefix for a kind key ("SALE", "PURCHASE", "RETURN").
//
// Set via env:
// - ORDER_PREFIX_SALE (default SL)
// - ORDER_PREFIX_PURCHASE (default PO)
// - ORDER_PREFIX_RETURN (default RT)
func OrderPrefix(kindKey string, def string) string {
	return strings.ToUpper(envString("ORDER_PREFIX_"+strings.ToUpper(kindKey), def))
}

// PurchaseDefaultMarkup derives a sale price for products first seen on a purchase.
// PURCHASE_DEFAULT_MARKUP (default 1.3).
func PurchaseDefaultMarkup() decimal.Decimal {
	v, err := decimal.NewFromString(envString("PURCHASE_DEFAULT_MARKUP", "1.3"))
	if err != nil || !v.IsPositive() {
		return decimal.NewFromFloat(1.3)
	}
	return v
}

func ProductDefaultUnit() string {
	return envString("PRODUCT_DEFAULT_UNIT", "pcs")
}

func ProductDefaultCategory() string {
	return envString("PRODUCT_DEFAULT_CATEGORY", "Uncategorized")
}

func ProductDefaultLowStock() int {
	return IntFromEnv("PRODUCT_DEFAULT_LOW_STOCK", 10)
}

// DefaultPhoneRegion is the region used to parse counterparty phone numbers without a country code.
func DefaultPhoneRegion() string {
	return strings.ToUpper(envString("DEFAULT_PHONE_REGION", "MM"))
}

func SkipMigrations() bool {
	return envBool("SKIP_MIGRATIONS")
}
