package config

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolatedPerRegistry(t *testing.T) {
	a := NewMetrics("test_a")
	b := NewMetrics("test_b")

	a.OrdersCreated.WithLabelValues("Sale").Inc()
	a.OrdersCreated.WithLabelValues("Sale").Inc()
	a.OrderFailures.WithLabelValues("Sale", "InsufficientStock").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.OrdersCreated.WithLabelValues("Sale")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.OrdersCreated.WithLabelValues("Sale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.OrderFailures.WithLabelValues("Sale", "InsufficientStock")))
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics("test_http")
	m.StockChanges.WithLabelValues("Sale").Add(3)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `test_http_stock_changes_total{operation="Sale"} 3`), string(body))
}

func TestEnvironmentSettings(t *testing.T) {
	t.Setenv("ORDER_PREFIX_SALE", "")
	assert.Equal(t, "SL", OrderPrefix("sale", "SL"))
	t.Setenv("ORDER_PREFIX_SALE", "inv")
	assert.Equal(t, "INV", OrderPrefix("sale", "SL"))

	t.Setenv("PURCHASE_DEFAULT_MARKUP", "")
	assert.True(t, PurchaseDefaultMarkup().Equal(decimal.RequireFromString("1.3")))
	t.Setenv("PURCHASE_DEFAULT_MARKUP", "-2")
	assert.True(t, PurchaseDefaultMarkup().Equal(decimal.RequireFromString("1.3")))
	t.Setenv("PURCHASE_DEFAULT_MARKUP", "1.5")
	assert.True(t, PurchaseDefaultMarkup().Equal(decimal.RequireFromString("1.5")))

	t.Setenv("DB_COMMAND_TIMEOUT_SECONDS", "abc")
	assert.Equal(t, 30*time.Second, CommandTimeout())
	t.Setenv("DB_COMMAND_TIMEOUT_SECONDS", "0")
	assert.Zero(t, CommandTimeout())

	t.Setenv("ORDER_EVENTS_ENABLED", "yes")
	assert.True(t, OrderEventsEnabled())
	t.Setenv("ORDER_EVENTS_ENABLED", "off")
	assert.False(t, OrderEventsEnabled())

	t.Setenv("REDIS_ENABLED", "")
	assert.True(t, RedisEnabled())
	t.Setenv("REDIS_ENABLED", "false")
	assert.False(t, RedisEnabled())
}

func TestRedisHelpersWithoutClient(t *testing.T) {
	SetRedis(nil)
	var v bool
	found, err := GetRedisObject("missing", &v)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetRedisObject("k", true, time.Minute))
	assert.NoError(t, RemoveRedisKey("k"))
	assert.Nil(t, GetRedisLock())
}

func TestMySQLDSN(t *testing.T) {
	t.Setenv("DB_USER", "trade")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "trade_db")
	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "3306")
	assert.Equal(t, "trade:pw@tcp(10.0.0.5:3306)/trade_db?parseTime=true&loc=UTC&transaction_isolation=%27READ-COMMITTED%27", mysqlDSN())

	t.Setenv("DB_HOST", "/cloudsql/proj:region:inst")
	assert.True(t, strings.HasPrefix(mysqlDSN(), "trade:pw@unix(/cloudsql/proj:region:inst)/trade_db?"), mysqlDSN())
}
