package models

import "time"

// MaxItemQuantity ограничивает количество одного товара в корзине
const MaxItemQuantity = 1_000_000

// Cart — корзина пользователя или гостя
type Cart struct {
	ID        int64
	Owner     Owner
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem — позиция корзины; пара (CartID, ProductID) уникальна
type CartItem struct {
	ID        int64
	CartID    int64
	ProductID string // идентификатор товара во внешнем каталоге
	Quantity  int
}

// Item возвращает позицию по товару, если она есть.
func (c *Cart) Item(productID string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return CartItem{}, false
}
