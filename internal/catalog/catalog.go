// Package catalog отдаёт товары внешнего каталога (Stripe) с кешированием.
package catalog

import (
	"context"

	"github.com/linemk/eshop/internal/lib/apperr"
)

// Product — товар каталога с ценой по умолчанию.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	// UnitAmount — цена за единицу в минорных единицах валюты
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	HasPrice   bool   `json:"has_price"`
	// Discount — процент скидки из метаданных товара (0–100)
	Discount int  `json:"discount"`
	Active   bool `json:"active"`
}

var (
	ErrProductNotFound = apperr.NotFound("product_not_found", "product not found")
	ErrInvalidDiscount = apperr.Validation("invalid_discount", "product discount must be an integer between 0 and 100")
	ErrUnavailable     = apperr.External("catalog_unavailable", nil)
)

// Catalog — источник товаров.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
}
