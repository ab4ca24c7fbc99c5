package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/eshop/internal/catalog"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/lib/apperr"
	"github.com/linemk/eshop/internal/storage"
)

var (
	ErrInvalidOwner      = apperr.Validation("invalid_owner", models.ErrInvalidOwner.Error())
	ErrInvalidQuantity   = apperr.Validation("invalid_quantity", "quantity must be a positive integer")
	ErrInvalidProduct    = apperr.Validation("invalid_product", "invalid product_id, quantity, or price")
	ErrInvalidDiscount   = catalog.ErrInvalidDiscount
	ErrEmptyCart         = apperr.Validation("empty_cart", "no items in the cart")
	ErrCurrencyMismatch  = apperr.Validation("currency_mismatch", "different currencies in order items")
	ErrCartAlreadyPaid   = apperr.Conflict("cart_already_paid", "cart is already linked to a paid order")
	ErrPaymentIncomplete = apperr.Validation("payment_incomplete", "checkout session is not paid")
	ErrMissingSessionID  = apperr.Validation("missing_session_id", "session_id is required")
	ErrInvalidID         = apperr.Validation("invalid_id", "identifier must be a positive integer")

	// ErrMergeFailed не прерывает вход, а возвращается клиенту как предупреждение
	ErrMergeFailed = apperr.New(apperr.KindPersistence, "merge_failed", "failed to merge guest cart")

	ErrInvalidCredentials = apperr.Unauthorized("invalid_credentials", "invalid email or password")
)

// inTx выполняет fn в транзакции: ошибка fn откатывает её, иначе коммит.
func inTx(ctx context.Context, db *sql.DB, logger *slog.Logger, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("failed to begin transaction: %w", apperr.Persistence(err))
	}

	if err := fn(tx); err != nil {
		rollback(logger, tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("failed to commit transaction: %w", apperr.Persistence(storage.Classify(err)))
	}
	return nil
}

func rollback(logger *slog.Logger, tx *sql.Tx) {
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}

// logFailure пишет сбои хранилища и внешних сервисов как ошибки, остальное как предупреждения.
func logFailure(logger *slog.Logger, msg string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindPersistence, apperr.KindExternal, apperr.KindUnknown:
		logger.Error(msg, slog.Any("error", err))
	default:
		logger.Warn(msg, slog.Any("error", err))
	}
}
