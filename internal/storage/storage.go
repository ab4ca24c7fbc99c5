package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/lib/apperr"
)

// Querier — общее подмножество *sql.DB и *sql.Tx.
// Методы чтения принимают Querier, чтобы их можно было звать и внутри транзакции, и вне её.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

var (
	ErrCartNotFound     = apperr.NotFound("cart_not_found", "cart not found")
	ErrCartItemNotFound = apperr.NotFound("cart_item_not_found", "item not found in cart")
	ErrOrderNotFound    = apperr.NotFound("order_not_found", "order not found")
	ErrUserNotFound     = apperr.NotFound("user_not_found", "user not found")
	ErrUserExists       = apperr.Conflict("user_exists", "user already exists")
	ErrQuantityLimit    = apperr.Validation("invalid_quantity", "item quantity exceeds the limit")

	// ErrConcurrentUpdate — транзакция проиграла гонку (уникальный индекс, сериализация, блокировка).
	// Операцию можно повторить целиком.
	ErrConcurrentUpdate = &apperr.Error{
		Kind:    apperr.KindConflict,
		Reason:  "concurrent_update",
		Message: "resource was modified concurrently, please try again",
		Retry:   true,
	}
)

// коды ошибок postgres, которые означают проигранную гонку
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// Classify превращает ошибки гонок postgres в ErrConcurrentUpdate, остальное оставляет как есть.
// Применяется и к ошибкам коммита: сериализация может сорваться только на нём.
func Classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return ErrConcurrentUpdate.Wrap(err)
		}
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
	}
	return false
}

// ownerFilter возвращает условие WHERE и аргумент для владельца.
func ownerFilter(owner models.Owner) (string, any) {
	if id, ok := owner.UserID(); ok {
		return "user_id = $1", id
	}
	gid, _ := owner.GuestID()
	return "guest_id = $1", gid
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
