package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/product"
)

// metadataDiscount — ключ метаданных товара с процентом скидки
const metadataDiscount = "discount"

// StripeSource читает товары из Stripe вместе с ценой по умолчанию.
type StripeSource struct {
	client product.Client
}

// NewStripeSource создаёт источник. backend == nil означает боевой API Stripe.
func NewStripeSource(key string, backend stripe.Backend) *StripeSource {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeSource{client: product.Client{B: backend, Key: key}}
}

func (s *StripeSource) GetProduct(ctx context.Context, id string) (*Product, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx
	params.AddExpand("default_price")

	p, err := s.client.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) &&
			(stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing) {
			return nil, ErrProductNotFound
		}
		return nil, ErrUnavailable.Wrap(err)
	}
	return productFromStripe(p)
}

func productFromStripe(p *stripe.Product) (*Product, error) {
	if p == nil || p.Deleted {
		return nil, ErrProductNotFound
	}
	out := &Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Images:      p.Images,
		Active:      p.Active,
	}
	if price := p.DefaultPrice; price != nil && price.UnitAmount >= 0 && price.Currency != "" {
		out.UnitAmount = price.UnitAmount
		out.Currency = strings.ToLower(string(price.Currency))
		out.HasPrice = true
	}
	if raw, ok := p.Metadata[metadataDiscount]; ok && strings.TrimSpace(raw) != "" {
		d, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || d < 0 || d > 100 {
			return nil, ErrInvalidDiscount
		}
		out.Discount = d
	}
	return out, nil
}
