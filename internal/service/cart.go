package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linemk/eshop/internal/catalog"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/lib/apperr"
	"github.com/linemk/eshop/internal/storage"
)

// CartService — операции с корзиной владельца.
type CartService interface {
	GetCart(ctx context.Context, owner models.Owner) (*models.Cart, error)
	// AddItem создаёт корзину при необходимости и прибавляет количество к позиции.
	AddItem(ctx context.Context, owner models.Owner, productID string, quantity int) error
	// RemoveItem уменьшает количество, удаляя позицию, когда оно доходит до нуля.
	RemoveItem(ctx context.Context, owner models.Owner, productID string, quantity int) error
	DeleteCart(ctx context.Context, cartID int64) error
}

type cartService struct {
	log      *slog.Logger
	db       *sql.DB
	cartRepo storage.CartStorage
	catalog  catalog.Catalog
}

func NewCartService(log *slog.Logger, db *sql.DB, cartRepo storage.CartStorage, products catalog.Catalog) CartService {
	return &cartService{
		log:      log,
		db:       db,
		cartRepo: cartRepo,
		catalog:  products,
	}
}

func (s *cartService) GetCart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	const op = "service.CartService.GetCart"
	if !owner.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOwner)
	}

	cart, err := s.cartRepo.GetCartByOwner(ctx, s.db, owner)
	if err != nil {
		if !errors.Is(err, storage.ErrCartNotFound) {
			s.log.Error("failed to get cart", slog.String("op", op), slog.String("owner", owner.String()), slog.Any("error", err))
		}
		return nil, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, owner models.Owner, productID string, quantity int) error {
	const op = "service.CartService.AddItem"
	logger := s.log.With(
		slog.String("op", op),
		slog.String("owner", owner.String()),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)

	if !owner.Valid() {
		return fmt.Errorf("%s: %w", op, ErrInvalidOwner)
	}
	if quantity <= 0 || quantity > models.MaxItemQuantity {
		return fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidProduct)
	}

	// товар должен существовать в каталоге и иметь цену
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			logger.Warn("product not found in catalog")
			return fmt.Errorf("%s: %w", op, ErrInvalidProduct.Wrap(err))
		}
		logger.Error("failed to get product", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !product.HasPrice {
		logger.Warn("product has no price")
		return fmt.Errorf("%s: %w", op, ErrInvalidProduct)
	}

	err = inTx(ctx, s.db, logger, func(tx *sql.Tx) error {
		cart, err := s.cartRepo.GetOrCreateCart(ctx, tx, owner)
		if err != nil {
			logger.Error("failed to get or create cart", slog.Any("error", err))
			return apperr.Persistence(err)
		}
		if err := s.cartRepo.AddItemQuantity(ctx, tx, cart.ID, productID, quantity); err != nil {
			if errors.Is(err, storage.ErrQuantityLimit) {
				logger.Warn("item quantity limit reached")
				return err
			}
			logger.Error("failed to add item", slog.Any("error", err))
			return apperr.Persistence(err)
		}
		if err := s.cartRepo.TouchCart(ctx, tx, cart.ID); err != nil {
			return apperr.Persistence(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("item added to cart")
	return nil
}

func (s *cartService) RemoveItem(ctx context.Context, owner models.Owner, productID string, quantity int) error {
	const op = "service.CartService.RemoveItem"
	logger := s.log.With(
		slog.String("op", op),
		slog.String("owner", owner.String()),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)

	if !owner.Valid() {
		return fmt.Errorf("%s: %w", op, ErrInvalidOwner)
	}
	if quantity <= 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}

	err := inTx(ctx, s.db, logger, func(tx *sql.Tx) error {
		cart, err := s.cartRepo.LockCartByOwner(ctx, tx, owner)
		if err != nil {
			return apperr.Persistence(err)
		}
		item, err := s.cartRepo.LockItem(ctx, tx, cart.ID, strings.TrimSpace(productID))
		if err != nil {
			return apperr.Persistence(err)
		}

		if quantity >= item.Quantity {
			err = s.cartRepo.DeleteItem(ctx, tx, item.ID)
		} else {
			err = s.cartRepo.SetItemQuantity(ctx, tx, item.ID, item.Quantity-quantity)
		}
		if err != nil {
			logger.Error("failed to update item", slog.Any("error", err))
			return apperr.Persistence(err)
		}
		return apperr.Persistence(s.cartRepo.TouchCart(ctx, tx, cart.ID))
	})
	if err != nil {
		logger.Warn("failed to remove item", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("item removed from cart")
	return nil
}

func (s *cartService) DeleteCart(ctx context.Context, cartID int64) error {
	const op = "service.CartService.DeleteCart"
	logger := s.log.With(slog.String("op", op), slog.Int64("cart_id", cartID))

	if err := s.cartRepo.DeleteCart(ctx, s.db, cartID); err != nil {
		logger.Warn("failed to delete cart", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}
	logger.Info("cart deleted")
	return nil
}
