package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/models"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakePublisher struct {
	err  error
	sent []config.OrderEventMessage
}

func (p *fakePublisher) Publish(ctx context.Context, msg config.OrderEventMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, msg)
	return fmt.Sprintf("msg-%d", msg.ID), nil
}

// setupOutbox opens a private database and commits one sale, which leaves a
// single pending order event.
func setupOutbox(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("ORDER_EVENTS_ENABLED", "true")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), config.InitConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(nil)
		_ = sqlDB.Close()
	})
	require.NoError(t, models.MigrateTable())

	ctx := context.Background()
	operator := models.Operator{Id: "7", Name: "Dispatcher Test"}
	_, err = models.CreateProduct(ctx, operator, &models.NewProduct{Code: "P1", Name: "Tea", SalePrice: decimal.NewFromInt(3), OpeningQuantity: 10})
	require.NoError(t, err)
	sale, err := models.CreateSale(ctx, operator, &models.NewSale{Details: []models.NewSaleDetail{{ProductCode: "P1", Qty: 1}}})
	require.NoError(t, err)
	return db, sale.OrderNumber
}

func eventOf(t *testing.T, db *gorm.DB, orderNumber string) models.OrderEventRecord {
	t.Helper()
	var record models.OrderEventRecord
	require.NoError(t, db.Where("order_number = ?", orderNumber).First(&record).Error)
	return record
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDispatchOncePublishesPendingEvents(t *testing.T) {
	db, orderNumber := setupOutbox(t)
	publisher := &fakePublisher{}
	dispatcher := NewOutboxDispatcher(db, quietLogger(), publisher)

	assert.Equal(t, 1, dispatcher.DispatchOnce(context.Background()))
	require.Len(t, publisher.sent, 1)
	assert.Equal(t, orderNumber, publisher.sent[0].OrderNumber)
	assert.Equal(t, "Created", publisher.sent[0].Action)

	record := eventOf(t, db, orderNumber)
	assert.Equal(t, models.OutboxPublishStatusSent, record.PublishStatus)
	assert.Equal(t, 1, record.PublishAttempts)
	require.NotNil(t, record.PubSubMessageId)
	assert.Equal(t, fmt.Sprintf("msg-%d", record.ID), *record.PubSubMessageId)
	assert.NotNil(t, record.PublishedAt)
	assert.Nil(t, record.LockedBy)

	assert.Zero(t, dispatcher.DispatchOnce(context.Background()))
	assert.Len(t, publisher.sent, 1)
}

func TestDispatchOnceBacksOffFailedPublish(t *testing.T) {
	db, orderNumber := setupOutbox(t)
	publisher := &fakePublisher{err: errors.New("topic not found")}
	dispatcher := NewOutboxDispatcher(db, quietLogger(), publisher)
	dispatcher.InitialBackoff = time.Hour

	assert.Zero(t, dispatcher.DispatchOnce(context.Background()))

	record := eventOf(t, db, orderNumber)
	assert.Equal(t, models.OutboxPublishStatusFailed, record.PublishStatus)
	assert.Equal(t, 1, record.PublishAttempts)
	require.NotNil(t, record.LastPublishError)
	assert.Equal(t, "topic not found", *record.LastPublishError)
	require.NotNil(t, record.NextAttemptAt)
	assert.True(t, record.NextAttemptAt.After(time.Now().Add(30*time.Minute)))

	// not due yet
	publisher.err = nil
	assert.Zero(t, dispatcher.DispatchOnce(context.Background()))
	assert.Empty(t, publisher.sent)

	// the order itself is untouched by publish failures
	sale, err := models.GetSale(context.Background(), orderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusPaid, sale.CurrentStatus)
}

func TestDispatchOnceMovesExhaustedEventsToDead(t *testing.T) {
	db, orderNumber := setupOutbox(t)
	publisher := &fakePublisher{err: errors.New("permission denied")}
	dispatcher := NewOutboxDispatcher(db, quietLogger(), publisher)
	dispatcher.MaxAttempts = 1

	assert.Zero(t, dispatcher.DispatchOnce(context.Background()))

	record := eventOf(t, db, orderNumber)
	assert.Equal(t, models.OutboxPublishStatusDead, record.PublishStatus)
	assert.Nil(t, record.NextAttemptAt)

	publisher.err = nil
	assert.Zero(t, dispatcher.DispatchOnce(context.Background()))
	assert.Empty(t, publisher.sent)
}

func TestDispatcherBackoff(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second}
	assert.Equal(t, 5*time.Second, d.backoff(1))
	assert.Equal(t, 10*time.Second, d.backoff(2))
	assert.Equal(t, 20*time.Second, d.backoff(3))
	assert.Equal(t, 10*time.Minute, d.backoff(12))
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		NewOutboxDispatcher(nil, quietLogger(), &fakePublisher{}).Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
