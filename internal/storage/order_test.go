package storage_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{"id", "cart_id", "user_id", "guest_id", "total_amount", "status", "checkout_session_id", "notification_sent", "created_at", "updated_at"}

func TestCreateOrder_PendingUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(int64(9), nil, "g1", "pending").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_one_pending_per_cart"})
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = repo.CreateOrder(context.Background(), tx, 9, models.GuestOwner("g1"))
	assert.ErrorIs(t, err, storage.ErrConcurrentUpdate)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderWithItemsAndTotal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(int64(9), int64(3), nil, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(int64(100), "prod_a", 2, int64(1500), "eur").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SET total_amount = (SELECT COALESCE(SUM(price * quantity), 0)")).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"total_amount"}).AddRow(3000))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	id, err := repo.CreateOrder(ctx, tx, 9, models.UserOwner(3))
	require.NoError(t, err)
	assert.Equal(t, int64(100), id)
	require.NoError(t, repo.AddOrderItem(ctx, tx, id, models.OrderItem{ProductID: "prod_a", Quantity: 2, Price: 1500, Currency: "eur"}))
	total, err := repo.RecalculateTotal(ctx, tx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), total)
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_WithItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(100, 9, nil, "g1", 3000, "paid", "cs_test_1", true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id = $1")).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price", "currency"}).
			AddRow(1, 100, "prod_a", 2, 1500, "eur"))

	o, err := repo.GetOrderByID(context.Background(), db, 100)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.Equal(t, models.GuestOwner("g1"), o.Owner)
	require.NotNil(t, o.CartID)
	assert.Equal(t, int64(9), *o.CartID)
	require.NotNil(t, o.CheckoutSessionID)
	assert.Equal(t, "cs_test_1", *o.CheckoutSessionID)
	assert.True(t, o.NotificationSent)
	require.Len(t, o.Items, 1)
	assert.Equal(t, o.TotalAmount, o.ItemsTotal())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(orderCols))

	_, err = repo.GetOrderByID(context.Background(), db, 1)
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_CompareAndSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	query := regexp.QuoteMeta("UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3")

	mock.ExpectExec(query).WithArgs("paid", int64(1), "pending").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("paid", int64(1), "pending").WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.UpdateStatus(context.Background(), db, 1, models.OrderStatusPending, models.OrderStatusPaid)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.UpdateStatus(context.Background(), db, 1, models.OrderStatusPending, models.OrderStatusPaid)
	require.NoError(t, err)
	assert.False(t, changed, "second CAS must not change the row")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersByCart(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE cart_id = $1 AND status = $2")).
		WithArgs(int64(9), "pending").
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(100, 9, 3, nil, 0, "pending", nil, false, now, now))

	orders, err := repo.ListOrdersByCart(context.Background(), db, 9, models.OrderStatusPending)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Nil(t, orders[0].CheckoutSessionID)
	assert.Equal(t, models.UserOwner(3), orders[0].Owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotificationSent_Once(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	query := regexp.QuoteMeta("UPDATE orders SET notification_sent = TRUE WHERE id = $1 AND notification_sent = FALSE")
	mock.ExpectExec(query).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.MarkNotificationSent(context.Background(), db, 1)
	require.NoError(t, err)
	second, err := repo.MarkNotificationSent(context.Background(), db, 1)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseNotification(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET notification_sent = FALSE WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReleaseNotification(context.Background(), db, 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}
