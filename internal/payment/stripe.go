package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	PostCheckoutURL  string
	AllowedCountries []string
}

// StripeGateway — Gateway поверх Stripe Checkout.
type StripeGateway struct {
	cfg      StripeConfig
	sessions session.Client
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway создаёт шлюз. backend == nil означает боевой API Stripe.
func NewStripeGateway(cfg StripeConfig, backend stripe.Backend) *StripeGateway {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeGateway{
		cfg:      cfg,
		sessions: session.Client{B: backend, Key: cfg.SecretKey},
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := g.sessionParams(req)
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, ErrGatewayUnavailable.Wrap(err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) sessionParams(req CheckoutRequest) *stripe.CheckoutSessionParams {
	base := strings.TrimRight(g.cfg.PostCheckoutURL, "/")
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(base + "/checkout-success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(base + "/cart"),
	}

	for _, it := range req.Items {
		name := it.Name
		if name == "" {
			name = it.ProductID
		}
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(name),
		}
		if it.Description != "" {
			productData.Description = stripe.String(it.Description)
		}
		if len(it.Images) > 0 {
			productData.Images = stripe.StringSlice(it.Images)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(it.Currency),
				UnitAmount:  stripe.Int64(it.UnitAmount),
				ProductData: productData,
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		})
	}

	params.AddMetadata(MetadataOrderID, strconv.FormatInt(req.OrderID, 10))
	if req.CartID != nil {
		params.AddMetadata(MetadataCartID, strconv.FormatInt(*req.CartID, 10))
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if len(g.cfg.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(g.cfg.AllowedCountries),
		}
	}
	return params
}

func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.sessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) &&
			(stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing) {
			return nil, ErrSessionNotFound
		}
		return nil, ErrGatewayUnavailable.Wrap(err)
	}
	return sessionStatus(s), nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, ErrInvalidSignature.Wrap(err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "checkout.session.") || event.Data == nil {
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, ErrInvalidPayload.Wrap(err)
	}
	out.Session = sessionStatus(&s)
	return out, nil
}

func sessionStatus(s *stripe.CheckoutSession) *SessionStatus {
	return &SessionStatus{
		ID:            s.ID,
		PaymentStatus: string(s.PaymentStatus),
		Metadata:      s.Metadata,
	}
}
