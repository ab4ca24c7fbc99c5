package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/lib/apperr"
	"github.com/linemk/eshop/internal/service"
)

// CartItemResponse — позиция корзины в ответе.
type CartItemResponse struct {
	ID        int64  `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CartResponse struct {
	Message string             `json:"message"`
	CartID  int64              `json:"cart_id"`
	UserID  *int64             `json:"user_id,omitempty"`
	GuestID *string            `json:"guest_id,omitempty"`
	Items   []CartItemResponse `json:"items"`
}

// CartItemRequest — тело /cart/add и /cart/remove. Количество по умолчанию 1.
type CartItemRequest struct {
	OwnerRequest
	ProductID string `json:"product_id" validate:"required,max=255"`
	Quantity  *int   `json:"quantity" validate:"omitempty,gt=0,lte=1000000"`
}

func (r CartItemRequest) quantity() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

func newCartResponse(cart *models.Cart) CartResponse {
	items := make([]CartItemResponse, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, CartItemResponse{ID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return CartResponse{
		Message: "Cart successfully retrieved",
		CartID:  cart.ID,
		UserID:  cart.Owner.UserIDPtr(),
		GuestID: cart.Owner.GuestIDPtr(),
		Items:   items,
	}
}

// GetCartHandler обрабатывает GET /cart?user_id=&guest_id=
func GetCartHandler(log *slog.Logger, carts service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetCartHandler"
		logger := log.With(slog.String("op", op))

		owner, err := ownerFromQuery(r)
		if err != nil {
			logger.Warn("invalid owner", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		cart, err := carts.GetCart(r.Context(), owner)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newCartResponse(cart))
	}
}

// AddItemHandler обрабатывает POST /cart/add
func AddItemHandler(log *slog.Logger, carts service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AddItemHandler"
		logger := log.With(slog.String("op", op))

		var req CartItemRequest
		if err := decodeRequest(r, &req); err != nil {
			logger.Warn("invalid request", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}
		owner, err := resolveOwner(r.Context(), req.UserID, req.GuestID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		if err := carts.AddItem(r.Context(), owner, req.ProductID, req.quantity()); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, MessageResponse{Message: "Item added to cart successfully"})
	}
}

// RemoveItemHandler обрабатывает POST /cart/remove.
// Отсутствующая корзина или позиция — ошибка запроса (400), а не 404.
func RemoveItemHandler(log *slog.Logger, carts service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RemoveItemHandler"
		logger := log.With(slog.String("op", op))

		var req CartItemRequest
		if err := decodeRequest(r, &req); err != nil {
			logger.Warn("invalid request", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}
		owner, err := resolveOwner(r.Context(), req.UserID, req.GuestID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		if err := carts.RemoveItem(r.Context(), owner, req.ProductID, req.quantity()); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				writeErrorStatus(w, logger, http.StatusBadRequest, err)
				return
			}
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, MessageResponse{Message: "Item removed from cart successfully"})
	}
}
