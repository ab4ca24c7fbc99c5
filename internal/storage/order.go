package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/eshop/internal/domain/models"
)

// OrderStorage описывает методы для работы с заказами.
type OrderStorage interface {
	// CreateOrder вставляет заказ в статусе pending с нулевой суммой.
	CreateOrder(ctx context.Context, tx *sql.Tx, cartID int64, owner models.Owner) (int64, error)
	// AddOrderItem вставляет позицию заказа с зафиксированной ценой.
	AddOrderItem(ctx context.Context, tx *sql.Tx, orderID int64, item models.OrderItem) error
	// RecalculateTotal пересчитывает total_amount по позициям и возвращает новую сумму.
	RecalculateTotal(ctx context.Context, tx *sql.Tx, orderID int64) (int64, error)
	// ListOrdersByCart возвращает заказы корзины в указанном статусе (без позиций).
	ListOrdersByCart(ctx context.Context, q Querier, cartID int64, status models.OrderStatus) ([]*models.Order, error)
	// GetOrderByID возвращает заказ вместе с позициями.
	GetOrderByID(ctx context.Context, q Querier, orderID int64) (*models.Order, error)
	// UpdateStatus меняет статус только если текущий равен from (compare-and-set).
	// Возвращает false, если строка не изменилась.
	UpdateStatus(ctx context.Context, q Querier, orderID int64, from, to models.OrderStatus) (bool, error)
	SetCheckoutSession(ctx context.Context, q Querier, orderID int64, sessionID string) error
	// MarkNotificationSent выставляет notification_sent один раз; false, если уже было выставлено.
	MarkNotificationSent(ctx context.Context, q Querier, orderID int64) (bool, error)
	// ReleaseNotification снимает notification_sent после неудачной публикации.
	ReleaseNotification(ctx context.Context, q Querier, orderID int64) error
}

// orderRepository — конкретная реализация OrderStorage.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const orderColumns = "id, cart_id, user_id, guest_id, total_amount, status, checkout_session_id, notification_sent, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o         models.Order
		cartID    sql.NullInt64
		userID    sql.NullInt64
		guestID   sql.NullString
		status    string
		sessionID sql.NullString
	)
	if err := row.Scan(&o.ID, &cartID, &userID, &guestID, &o.TotalAmount, &status, &sessionID, &o.NotificationSent, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	owner, err := models.OwnerFromColumns(userID, guestID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", o.ID, err)
	}
	o.Status, err = models.ParseOrderStatus(status)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", o.ID, err)
	}
	o.Owner = owner
	o.CartID = nullableInt64(cartID)
	o.CheckoutSessionID = nullableString(sessionID)
	return &o, nil
}

func (r *orderRepository) CreateOrder(ctx context.Context, tx *sql.Tx, cartID int64, owner models.Owner) (int64, error) {
	userID, guestID := owner.Columns()
	query := `INSERT INTO orders (cart_id, user_id, guest_id, total_amount, status, created_at, updated_at)
	          VALUES ($1, $2, $3, 0, $4, NOW(), NOW())
	          RETURNING id`
	var id int64
	if err := tx.QueryRowContext(ctx, query, cartID, userID, guestID, string(models.OrderStatusPending)).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create order: %w", Classify(err))
	}
	return id, nil
}

func (r *orderRepository) AddOrderItem(ctx context.Context, tx *sql.Tx, orderID int64, item models.OrderItem) error {
	query := `INSERT INTO order_items (order_id, product_id, quantity, price, currency)
	          VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, query, orderID, item.ProductID, item.Quantity, item.Price, item.Currency); err != nil {
		return fmt.Errorf("failed to add order item: %w", err)
	}
	return nil
}

func (r *orderRepository) RecalculateTotal(ctx context.Context, tx *sql.Tx, orderID int64) (int64, error) {
	query := `UPDATE orders
	          SET total_amount = (SELECT COALESCE(SUM(price * quantity), 0) FROM order_items WHERE order_id = $1),
	              updated_at = NOW()
	          WHERE id = $1
	          RETURNING total_amount`
	var total int64
	if err := tx.QueryRowContext(ctx, query, orderID).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrOrderNotFound
		}
		return 0, fmt.Errorf("failed to recalculate order total: %w", err)
	}
	return total, nil
}

func (r *orderRepository) ListOrdersByCart(ctx context.Context, q Querier, cartID int64, status models.OrderStatus) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE cart_id = $1 AND status = $2 ORDER BY id"
	rows, err := q.QueryContext(ctx, query, cartID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, q Querier, orderID int64) (*models.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	query := `
		SELECT id, order_id, product_id, quantity, price, currency
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`
	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price, &it.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, q Querier, orderID int64, from, to models.OrderStatus) (bool, error) {
	query := "UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3"
	res, err := q.ExecContext(ctx, query, string(to), orderID, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", Classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *orderRepository) SetCheckoutSession(ctx context.Context, q Querier, orderID int64, sessionID string) error {
	res, err := q.ExecContext(ctx, "UPDATE orders SET checkout_session_id = $1, updated_at = NOW() WHERE id = $2", sessionID, orderID)
	if err != nil {
		return fmt.Errorf("failed to store checkout session: %w", err)
	}
	return expectAffected(res, ErrOrderNotFound)
}

func (r *orderRepository) MarkNotificationSent(ctx context.Context, q Querier, orderID int64) (bool, error) {
	res, err := q.ExecContext(ctx, "UPDATE orders SET notification_sent = TRUE WHERE id = $1 AND notification_sent = FALSE", orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *orderRepository) ReleaseNotification(ctx context.Context, q Querier, orderID int64) error {
	if _, err := q.ExecContext(ctx, "UPDATE orders SET notification_sent = FALSE WHERE id = $1", orderID); err != nil {
		return fmt.Errorf("failed to release notification: %w", err)
	}
	return nil
}
