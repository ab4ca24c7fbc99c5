package models

import (
	"errors"
	"fmt"
	"time"
)

// OrderStatus — закрытый набор статусов заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// IsTerminal — из PAID и CANCELLED переходов нет.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// Transition вычисляет следующий статус.
// Из терминального статуса любой переход считается no-op (changed=false, без ошибки):
// повторный вебхук ничего не меняет.
func (s OrderStatus) Transition(to OrderStatus) (OrderStatus, bool, error) {
	if s.IsTerminal() {
		return s, false, nil
	}
	if s != OrderStatusPending {
		return s, false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s)
	}
	switch to {
	case OrderStatusPaid, OrderStatusCancelled:
		return to, true, nil
	default:
		return s, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
}

// Order — заказ, собранный из корзины
type Order struct {
	ID                int64
	CartID            *int64 // обратная ссылка, заказ может пережить корзину
	Owner             Owner
	TotalAmount       int64 // в минорных единицах валюты
	Status            OrderStatus
	CheckoutSessionID *string
	NotificationSent  bool
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderItem — позиция заказа; цена зафиксирована на момент создания заказа
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID string
	Quantity  int
	Price     int64 // цена за единицу после скидки, в минорных единицах
	Currency  string
}

// Currency — валюта заказа (у всех позиций она одна).
func (o *Order) Currency() string {
	if len(o.Items) == 0 {
		return ""
	}
	return o.Items[0].Currency
}

// ItemsTotal — сумма price×quantity по позициям.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.Price * int64(it.Quantity)
	}
	return total
}

// BelongsTo проверяет владельца заказа.
func (o *Order) BelongsTo(owner Owner) bool {
	return o.Owner == owner
}
