package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/eshop/internal/domain/models"
)

// CartStorage описывает методы для работы с корзинами и их позициями.
type CartStorage interface {
	// GetCartByOwner возвращает корзину владельца вместе с позициями.
	GetCartByOwner(ctx context.Context, q Querier, owner models.Owner) (*models.Cart, error)
	// LockCartByOwner блокирует строку корзины владельца до конца транзакции.
	LockCartByOwner(ctx context.Context, tx *sql.Tx, owner models.Owner) (*models.Cart, error)
	// LockCartByID блокирует строку корзины по идентификатору до конца транзакции.
	LockCartByID(ctx context.Context, tx *sql.Tx, cartID int64) (*models.Cart, error)
	// GetOrCreateCart находит корзину владельца или создаёт её и блокирует строку.
	GetOrCreateCart(ctx context.Context, tx *sql.Tx, owner models.Owner) (*models.Cart, error)
	// ListItems возвращает позиции корзины в порядке добавления.
	ListItems(ctx context.Context, q Querier, cartID int64) ([]models.CartItem, error)
	// AddItemQuantity прибавляет количество к позиции, создавая её при отсутствии.
	// Если сумма превысит models.MaxItemQuantity, позиция не меняется и возвращается ErrQuantityLimit.
	AddItemQuantity(ctx context.Context, tx *sql.Tx, cartID int64, productID string, quantity int) error
	// LockItem блокирует позицию корзины по товару.
	LockItem(ctx context.Context, tx *sql.Tx, cartID int64, productID string) (*models.CartItem, error)
	SetItemQuantity(ctx context.Context, tx *sql.Tx, itemID int64, quantity int) error
	DeleteItem(ctx context.Context, tx *sql.Tx, itemID int64) error
	// TouchCart обновляет updated_at корзины.
	TouchCart(ctx context.Context, tx *sql.Tx, cartID int64) error
	// DeleteCart удаляет корзину, позиции удаляются каскадно.
	DeleteCart(ctx context.Context, q Querier, cartID int64) error
}

type cartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) CartStorage {
	return &cartRepository{db: db}
}

const cartColumns = "id, user_id, guest_id, created_at, updated_at"

func scanCart(row *sql.Row) (*models.Cart, error) {
	var (
		cart    models.Cart
		userID  sql.NullInt64
		guestID sql.NullString
	)
	if err := row.Scan(&cart.ID, &userID, &guestID, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	owner, err := models.OwnerFromColumns(userID, guestID)
	if err != nil {
		return nil, fmt.Errorf("cart %d: %w", cart.ID, err)
	}
	cart.Owner = owner
	return &cart, nil
}

func (r *cartRepository) GetCartByOwner(ctx context.Context, q Querier, owner models.Owner) (*models.Cart, error) {
	where, arg := ownerFilter(owner)
	cart, err := scanCart(q.QueryRowContext(ctx, "SELECT "+cartColumns+" FROM carts WHERE "+where, arg))
	if err != nil {
		return nil, err
	}
	cart.Items, err = r.ListItems(ctx, q, cart.ID)
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *cartRepository) LockCartByOwner(ctx context.Context, tx *sql.Tx, owner models.Owner) (*models.Cart, error) {
	where, arg := ownerFilter(owner)
	return scanCart(tx.QueryRowContext(ctx, "SELECT "+cartColumns+" FROM carts WHERE "+where+" FOR UPDATE", arg))
}

func (r *cartRepository) LockCartByID(ctx context.Context, tx *sql.Tx, cartID int64) (*models.Cart, error) {
	cart, err := scanCart(tx.QueryRowContext(ctx, "SELECT "+cartColumns+" FROM carts WHERE id = $1 FOR UPDATE", cartID))
	if err != nil {
		return nil, Classify(err)
	}
	return cart, nil
}

// GetOrCreateCart опирается на уникальные ограничения carts.user_id / carts.guest_id:
// параллельная вставка для того же владельца дождётся первой и ничего не сделает.
func (r *cartRepository) GetOrCreateCart(ctx context.Context, tx *sql.Tx, owner models.Owner) (*models.Cart, error) {
	userID, guestID := owner.Columns()
	query := `INSERT INTO carts (user_id, guest_id, created_at, updated_at)
	          VALUES ($1, $2, NOW(), NOW())
	          ON CONFLICT DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, userID, guestID); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", Classify(err))
	}
	return r.LockCartByOwner(ctx, tx, owner)
}

func (r *cartRepository) ListItems(ctx context.Context, q Querier, cartID int64) ([]models.CartItem, error) {
	query := `
		SELECT id, cart_id, product_id, quantity
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id`
	rows, err := q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) AddItemQuantity(ctx context.Context, tx *sql.Tx, cartID int64, productID string, quantity int) error {
	query := `INSERT INTO cart_items (cart_id, product_id, quantity)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (cart_id, product_id)
	          DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	          WHERE cart_items.quantity + EXCLUDED.quantity <= $4`
	res, err := tx.ExecContext(ctx, query, cartID, productID, quantity, models.MaxItemQuantity)
	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return expectAffected(res, ErrQuantityLimit)
}

func (r *cartRepository) LockItem(ctx context.Context, tx *sql.Tx, cartID int64, productID string) (*models.CartItem, error) {
	it := &models.CartItem{}
	query := "SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2 FOR UPDATE"
	row := tx.QueryRowContext(ctx, query, cartID, productID)
	if err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}
	return it, nil
}

func (r *cartRepository) SetItemQuantity(ctx context.Context, tx *sql.Tx, itemID int64, quantity int) error {
	res, err := tx.ExecContext(ctx, "UPDATE cart_items SET quantity = $1 WHERE id = $2", quantity, itemID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return expectAffected(res, ErrCartItemNotFound)
}

func (r *cartRepository) DeleteItem(ctx context.Context, tx *sql.Tx, itemID int64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return expectAffected(res, ErrCartItemNotFound)
}

func (r *cartRepository) TouchCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, "UPDATE carts SET updated_at = NOW() WHERE id = $1", cartID); err != nil {
		return fmt.Errorf("failed to touch cart: %w", err)
	}
	return nil
}

func (r *cartRepository) DeleteCart(ctx context.Context, q Querier, cartID int64) error {
	res, err := q.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return expectAffected(res, ErrCartNotFound)
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
