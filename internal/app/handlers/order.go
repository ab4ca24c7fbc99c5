package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/eshop/internal/lib/apperr"
	"github.com/linemk/eshop/internal/service"
	"github.com/linemk/eshop/internal/storage"
)

type OrderItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Currency  string `json:"currency"`
}

type OrderResponse struct {
	ID                int64               `json:"id"`
	CartID            *int64              `json:"cart_id,omitempty"`
	UserID            *int64              `json:"user_id,omitempty"`
	GuestID           *string             `json:"guest_id,omitempty"`
	Status            string              `json:"status"`
	TotalAmount       int64               `json:"total_amount"`
	Currency          string              `json:"currency,omitempty"`
	CheckoutSessionID *string             `json:"checkout_session_id,omitempty"`
	Items             []OrderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func newOrderResponse(o *models.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Currency:  it.Currency,
		})
	}
	return OrderResponse{
		ID:                o.ID,
		CartID:            o.CartID,
		UserID:            o.Owner.UserIDPtr(),
		GuestID:           o.Owner.GuestIDPtr(),
		Status:            string(o.Status),
		TotalAmount:       o.TotalAmount,
		Currency:          o.Currency(),
		CheckoutSessionID: o.CheckoutSessionID,
		Items:             items,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

// OrderEnvelope — ответ с сообщением и заказом.
type OrderEnvelope struct {
	Message string        `json:"message"`
	Order   OrderResponse `json:"order"`
}

type CreateOrderRequest struct {
	OwnerRequest
	CartID int64 `json:"cart_id" validate:"required,gt=0"`
}

type CreateOrderResponse struct {
	Message     string `json:"message"`
	OrderID     int64  `json:"order_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateOrderHandler обрабатывает POST /order/create
func CreateOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		var req CreateOrderRequest
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

		res, err := orders.CreateOrder(r.Context(), owner, req.CartID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, CreateOrderResponse{
			Message:     "Order created",
			OrderID:     res.Order.ID,
			CheckoutURL: res.CheckoutURL,
		})
	}
}

// GetOrderHandler обрабатывает GET /order?order_id=&user_id=&guest_id=
// Владелец необязателен; если он указан, чужой заказ отдаётся как 404.
func GetOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		orderID, err := strconv.ParseInt(r.URL.Query().Get("order_id"), 10, 64)
		if err != nil || orderID <= 0 {
			writeError(w, logger, service.ErrInvalidID)
			return
		}

		var filter models.Owner
		if hasOwnerQuery(r) {
			if filter, err = ownerFromQuery(r); err != nil {
				writeError(w, logger, err)
				return
			}
		} else if userID, ok := jwtmiddleware.FromContext(r.Context()); ok {
			filter = models.UserOwner(userID)
		}

		order, err := orders.GetOrder(r.Context(), orderID, filter)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, OrderEnvelope{Message: "Order successfully retrieved", Order: newOrderResponse(order)})
	}
}

func hasOwnerQuery(r *http.Request) bool {
	q := r.URL.Query()
	return q.Get("user_id") != "" || q.Get("guest_id") != ""
}

type CancelOrderRequest struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

// CancelOrderHandler обрабатывает POST /order/cancel.
// Корзина удаляется только если отмена действительно изменила заказ:
// no-op отмена заменённого заказа не должна трогать корзину нового.
func CancelOrderHandler(log *slog.Logger, orders service.OrderService, carts service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CancelOrderHandler"
		logger := log.With(slog.String("op", op))

		var req CancelOrderRequest
		if err := decodeRequest(r, &req); err != nil {
			logger.Warn("invalid request", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}
		logger = logger.With(slog.Int64("order_id", req.OrderID))

		// аутентифицированный пользователь может отменить только свой заказ
		if userID, ok := jwtmiddleware.FromContext(r.Context()); ok {
			if _, err := orders.GetOrder(r.Context(), req.OrderID, models.UserOwner(userID)); err != nil {
				writeCancelError(w, logger, err)
				return
			}
		}

		order, changed, err := orders.CancelOrder(r.Context(), req.OrderID)
		if err != nil {
			writeCancelError(w, logger, err)
			return
		}

		if changed && order.CartID != nil {
			if err := carts.DeleteCart(r.Context(), *order.CartID); err != nil && !errors.Is(err, storage.ErrCartNotFound) {
				logger.Error("failed to delete cart of cancelled order", slog.Any("error", err))
			}
		}

		msg := "Order cancelled"
		if !changed {
			msg = "Order is already " + string(order.Status)
		}
		writeJSON(w, logger, http.StatusOK, OrderEnvelope{Message: msg, Order: newOrderResponse(order)})
	}
}

func writeCancelError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if apperr.KindOf(err) == apperr.KindNotFound {
		writeErrorStatus(w, logger, http.StatusBadRequest, err)
		return
	}
	writeError(w, logger, err)
}

type CheckoutSuccessRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}

// CheckoutSuccessHandler обрабатывает POST /order/checkout/success: синхронное подтверждение
// после редиректа со страницы оплаты.
func CheckoutSuccessHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CheckoutSuccessHandler"
		logger := log.With(slog.String("op", op))

		var req CheckoutSuccessRequest
		if err := decodeRequest(r, &req); err != nil {
			logger.Warn("invalid request", slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		order, err := orders.ConfirmCheckoutSession(r.Context(), req.SessionID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		msg := "Payment confirmed"
		if order.Status != models.OrderStatusPaid {
			msg = "Order is " + string(order.Status)
		}
		writeJSON(w, logger, http.StatusOK, OrderEnvelope{Message: msg, Order: newOrderResponse(order)})
	}
}
