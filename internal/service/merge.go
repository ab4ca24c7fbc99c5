package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/storage"
)

type MergeOutcome string

const (
	MergeNothing MergeOutcome = "nothing_to_merge"
	MergeMerged  MergeOutcome = "merged"
)

type MergeResult struct {
	Outcome     MergeOutcome
	CartID      int64 // корзина пользователя после слияния
	ItemsMerged int
}

// Message — текст для ответа на вход.
func (r *MergeResult) Message() string {
	if r.Outcome == MergeNothing {
		return "No guest cart to merge."
	}
	return "Guest cart merged into user cart."
}

// MergeService переносит гостевую корзину в корзину пользователя при входе.
type MergeService interface {
	MergeGuestCart(ctx context.Context, userID int64, guestID string) (*MergeResult, error)
}

type mergeService struct {
	log      *slog.Logger
	db       *sql.DB
	cartRepo storage.CartStorage
}

func NewMergeService(log *slog.Logger, db *sql.DB, cartRepo storage.CartStorage) MergeService {
	return &mergeService{log: log, db: db, cartRepo: cartRepo}
}

// MergeGuestCart складывает позиции гостевой корзины в корзину пользователя
// и удаляет гостевую корзину в той же транзакции.
// Любой сбой откатывает всё и возвращается как ErrMergeFailed.
func (s *mergeService) MergeGuestCart(ctx context.Context, userID int64, guestID string) (*MergeResult, error) {
	const op = "service.MergeService.MergeGuestCart"
	logger := s.log.With(slog.String("op", op), slog.Int64("user_id", userID), slog.String("guest_id", guestID))

	owner, err := models.OwnerFrom(&userID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOwner)
	}
	guest, err := models.OwnerFrom(nil, &guestID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOwner)
	}

	result := &MergeResult{Outcome: MergeNothing}
	err = inTx(ctx, s.db, logger, func(tx *sql.Tx) error {
		guestCart, err := s.cartRepo.LockCartByOwner(ctx, tx, guest)
		if err != nil {
			if errors.Is(err, storage.ErrCartNotFound) {
				return nil
			}
			return err
		}

		userCart, err := s.cartRepo.GetOrCreateCart(ctx, tx, owner)
		if err != nil {
			return err
		}

		items, err := s.cartRepo.ListItems(ctx, tx, guestCart.ID)
		if err != nil {
			return err
		}
		// upsert складывает количества для товаров, которые уже есть у пользователя
		for _, it := range items {
			if err := s.cartRepo.AddItemQuantity(ctx, tx, userCart.ID, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		if err := s.cartRepo.DeleteCart(ctx, tx, guestCart.ID); err != nil {
			return err
		}
		if err := s.cartRepo.TouchCart(ctx, tx, userCart.ID); err != nil {
			return err
		}

		result = &MergeResult{Outcome: MergeMerged, CartID: userCart.ID, ItemsMerged: len(items)}
		return nil
	})
	if err != nil {
		logger.Error("cart merge failed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, ErrMergeFailed.Wrap(err))
	}

	logger.Info("guest cart merged", slog.String("outcome", string(result.Outcome)), slog.Int("items", result.ItemsMerged))
	return result, nil
}
