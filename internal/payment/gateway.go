// Package payment описывает порт платёжного шлюза и его реализацию на Stripe.
package payment

import (
	"context"
	"strconv"

	"github.com/linemk/eshop/internal/lib/apperr"
)

// ключи метаданных сессии
const (
	MetadataOrderID = "order_id"
	MetadataCartID  = "cart_id"
)

// типы событий вебхука, которые подтверждают оплату
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

var (
	ErrGatewayUnavailable = apperr.External("payment_gateway_unavailable", nil)
	ErrInvalidSignature   = apperr.Validation("invalid_signature", "webhook signature verification failed")
	ErrInvalidPayload     = apperr.Validation("invalid_payload", "webhook payload is malformed")
	ErrSessionNotFound    = apperr.NotFound("session_not_found", "checkout session not found")
	ErrMissingOrderID     = apperr.Validation("missing_order_id", "checkout session has no order reference")
)

// LineItem — позиция платёжной сессии с зафиксированной ценой.
type LineItem struct {
	ProductID   string
	Name        string
	Description string
	Images      []string
	UnitAmount  int64
	Currency    string
	Quantity    int
}

type CheckoutRequest struct {
	OrderID       int64
	CartID        *int64
	CustomerEmail string
	Items         []LineItem
}

// CheckoutSession — созданная сессия: идентификатор и адрес для редиректа.
type CheckoutSession struct {
	ID  string
	URL string
}

// SessionStatus — то, что ядро читает из сессии шлюза.
type SessionStatus struct {
	ID            string
	PaymentStatus string
	Metadata      map[string]string
}

func (s *SessionStatus) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

// OrderID достаёт идентификатор заказа из метаданных.
func (s *SessionStatus) OrderID() (int64, error) {
	raw, ok := s.Metadata[MetadataOrderID]
	if !ok || raw == "" {
		return 0, ErrMissingOrderID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMissingOrderID
	}
	return id, nil
}

// Event — проверенное событие вебхука. Session заполнена только для событий checkout-сессии.
type Event struct {
	ID      string
	Type    string
	Session *SessionStatus
}

// ConfirmsPayment — событие сообщает об успешной оплате сессии.
func (e *Event) ConfirmsPayment() bool {
	if e.Session == nil {
		return false
	}
	switch e.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSucceeded:
		return e.Session.Paid()
	}
	return false
}

// Gateway — платёжный шлюз.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (*SessionStatus, error)
	// ParseWebhook проверяет подпись и разбирает тело вебхука.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
