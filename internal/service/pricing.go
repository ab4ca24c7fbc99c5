package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/linemk/eshop/internal/catalog"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/payment"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var hundred = decimal.NewFromInt(100)

// DiscountedUnitPrice применяет процентную скидку к цене в минорных единицах.
// Половина единицы округляется вверх.
func DiscountedUnitPrice(unitAmount int64, discount int) (int64, error) {
	if discount < 0 || discount > 100 {
		return 0, ErrInvalidDiscount
	}
	if unitAmount < 0 {
		return 0, ErrInvalidProduct
	}
	if discount == 0 {
		return unitAmount, nil
	}
	price := decimal.NewFromInt(unitAmount).
		Mul(decimal.NewFromInt(int64(100 - discount))).
		Div(hundred).
		Round(0)
	return price.IntPart(), nil
}

// pricedItem — позиция корзины с зафиксированной ценой.
type pricedItem struct {
	item    models.OrderItem
	product *catalog.Product
}

// priceItems параллельно запрашивает цены позиций, сохраняя порядок корзины,
// и проверяет, что валюта у всех позиций одна.
func priceItems(ctx context.Context, products catalog.Catalog, items []models.CartItem, limit int) ([]pricedItem, error) {
	priced := make([]pricedItem, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, it := range items {
		g.Go(func() error {
			if it.Quantity <= 0 {
				return fmt.Errorf("product %s: %w", it.ProductID, ErrInvalidProduct)
			}
			product, err := products.GetProduct(gctx, it.ProductID)
			if err != nil {
				if errors.Is(err, catalog.ErrProductNotFound) {
					return fmt.Errorf("product %s: %w", it.ProductID, ErrInvalidProduct.Wrap(err))
				}
				return fmt.Errorf("product %s: %w", it.ProductID, err)
			}
			if !product.HasPrice {
				return fmt.Errorf("product %s has no price: %w", it.ProductID, ErrInvalidProduct)
			}
			price, err := DiscountedUnitPrice(product.UnitAmount, product.Discount)
			if err != nil {
				return fmt.Errorf("product %s: %w", it.ProductID, err)
			}
			priced[i] = pricedItem{
				item: models.OrderItem{
					ProductID: it.ProductID,
					Quantity:  it.Quantity,
					Price:     price,
					Currency:  product.Currency,
				},
				product: product,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(priced) == 0 {
		return priced, nil
	}

	for _, p := range priced[1:] {
		if p.item.Currency != priced[0].item.Currency {
			return nil, fmt.Errorf("%s vs %s: %w", priced[0].item.Currency, p.item.Currency, ErrCurrencyMismatch)
		}
	}
	return priced, nil
}

func itemsTotal(priced []pricedItem) int64 {
	var total int64
	for _, p := range priced {
		total += p.item.Price * int64(p.item.Quantity)
	}
	return total
}

func lineItems(priced []pricedItem) []payment.LineItem {
	lines := make([]payment.LineItem, 0, len(priced))
	for _, p := range priced {
		lines = append(lines, payment.LineItem{
			ProductID:   p.item.ProductID,
			Name:        p.product.Name,
			Description: p.product.Description,
			Images:      p.product.Images,
			UnitAmount:  p.item.Price,
			Currency:    p.item.Currency,
			Quantity:    p.item.Quantity,
		})
	}
	return lines
}
