package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linemk/eshop/internal/catalog"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/lib/apperr"
	"github.com/linemk/eshop/internal/notify"
	"github.com/linemk/eshop/internal/payment"
	"github.com/linemk/eshop/internal/storage"
)

type OrderConfig struct {
	// PriceLookupConcurrency ограничивает параллельные запросы цен к каталогу
	PriceLookupConcurrency int
	// CreateAttempts — сколько раз повторять создание заказа при гонке транзакций
	CreateAttempts int
	GatewayTimeout time.Duration
}

type CreateOrderResult struct {
	Order       *models.Order
	CheckoutURL string
}

type WebhookResult struct {
	EventID   string
	EventType string
	OrderID   int64
	Handled   bool
}

// OrderService управляет жизненным циклом заказа: PENDING -> PAID | CANCELLED.
type OrderService interface {
	CreateOrder(ctx context.Context, owner models.Owner, cartID int64) (*CreateOrderResult, error)
	// CancelOrder возвращает changed=false, если заказ уже был в терминальном статусе.
	CancelOrder(ctx context.Context, orderID int64) (*models.Order, bool, error)
	// ConfirmPayment идемпотентно переводит заказ в PAID; changed=true только у первого вызова.
	ConfirmPayment(ctx context.Context, orderID int64) (*models.Order, bool, error)
	ConfirmCheckoutSession(ctx context.Context, sessionID string) (*models.Order, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
	// GetOrder с валидным filter скрывает чужие заказы как несуществующие.
	GetOrder(ctx context.Context, orderID int64, filter models.Owner) (*models.Order, error)
}

type orderService struct {
	log       *slog.Logger
	db        *sql.DB
	cartRepo  storage.CartStorage
	orderRepo storage.OrderStorage
	userRepo  storage.UserStorage
	catalog   catalog.Catalog
	gateway   payment.Gateway
	publisher notify.Publisher
	cfg       OrderConfig
}

func NewOrderService(
	log *slog.Logger,
	db *sql.DB,
	cartRepo storage.CartStorage,
	orderRepo storage.OrderStorage,
	userRepo storage.UserStorage,
	products catalog.Catalog,
	gateway payment.Gateway,
	publisher notify.Publisher,
	cfg OrderConfig,
) OrderService {
	if cfg.CreateAttempts < 1 {
		cfg.CreateAttempts = 1
	}
	return &orderService{
		log:       log,
		db:        db,
		cartRepo:  cartRepo,
		orderRepo: orderRepo,
		userRepo:  userRepo,
		catalog:   products,
		gateway:   gateway,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, owner models.Owner, cartID int64) (*CreateOrderResult, error) {
	const op = "service.OrderService.CreateOrder"
	logger := s.log.With(slog.String("op", op), slog.String("owner", owner.String()), slog.Int64("cart_id", cartID))

	if !owner.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOwner)
	}
	if cartID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidID)
	}

	var (
		order  *models.Order
		priced []pricedItem
		err    error
	)
	for attempt := 1; ; attempt++ {
		order, priced, err = s.createOrderTx(ctx, logger, owner, cartID)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrConcurrentUpdate) && attempt < s.cfg.CreateAttempts {
			logger.Warn("concurrent order creation, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
			continue
		}
		logFailure(logger, "failed to create order", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger = logger.With(slog.Int64("order_id", order.ID))
	logger.Info("order created", slog.Int64("total_amount", order.TotalAmount), slog.String("currency", order.Currency()))

	// заказ уже закоммичен: при сбое шлюза он остаётся PENDING и будет заменён следующим create
	session, err := s.openCheckout(ctx, logger, order, priced)
	if err != nil {
		return nil, fmt.Errorf("%s: order %d: %w", op, order.ID, err)
	}
	order.CheckoutSessionID = &session.ID

	return &CreateOrderResult{Order: order, CheckoutURL: session.URL}, nil
}

func (s *orderService) createOrderTx(ctx context.Context, logger *slog.Logger, owner models.Owner, cartID int64) (*models.Order, []pricedItem, error) {
	var (
		order  *models.Order
		priced []pricedItem
	)
	err := inTx(ctx, s.db, logger, func(tx *sql.Tx) error {
		// блокировка корзины сериализует конкурентные create_order по одной корзине
		cart, err := s.cartRepo.LockCartByID(ctx, tx, cartID)
		if err != nil {
			return apperr.Persistence(err)
		}
		if cart.Owner != owner {
			return storage.ErrCartNotFound
		}

		paid, err := s.orderRepo.ListOrdersByCart(ctx, tx, cartID, models.OrderStatusPaid)
		if err != nil {
			return apperr.Persistence(err)
		}
		if len(paid) > 0 {
			return ErrCartAlreadyPaid
		}

		pending, err := s.orderRepo.ListOrdersByCart(ctx, tx, cartID, models.OrderStatusPending)
		if err != nil {
			return apperr.Persistence(err)
		}
		for _, o := range pending {
			changed, err := s.orderRepo.UpdateStatus(ctx, tx, o.ID, models.OrderStatusPending, models.OrderStatusCancelled)
			if err != nil {
				return apperr.Persistence(err)
			}
			if !changed {
				return storage.ErrConcurrentUpdate
			}
			logger.Info("superseded pending order", slog.Int64("superseded_order_id", o.ID))
		}

		items, err := s.cartRepo.ListItems(ctx, tx, cartID)
		if err != nil {
			return apperr.Persistence(err)
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		// все проверки цен и валют до первой вставки заказа
		priced, err = priceItems(ctx, s.catalog, items, s.cfg.PriceLookupConcurrency)
		if err != nil {
			return err
		}

		orderID, err := s.orderRepo.CreateOrder(ctx, tx, cartID, owner)
		if err != nil {
			return apperr.Persistence(err)
		}
		cid := cartID
		order = &models.Order{ID: orderID, CartID: &cid, Owner: owner, Status: models.OrderStatusPending}

		for _, p := range priced {
			it := p.item
			it.OrderID = orderID
			if err := s.orderRepo.AddOrderItem(ctx, tx, orderID, it); err != nil {
				return apperr.Persistence(err)
			}
			order.Items = append(order.Items, it)
		}

		total, err := s.orderRepo.RecalculateTotal(ctx, tx, orderID)
		if err != nil {
			return apperr.Persistence(err)
		}
		if expected := itemsTotal(priced); total != expected {
			return apperr.Persistence(fmt.Errorf("order total mismatch: stored %d, computed %d", total, expected))
		}
		order.TotalAmount = total
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, priced, nil
}

func (s *orderService) openCheckout(ctx context.Context, logger *slog.Logger, order *models.Order, priced []pricedItem) (*payment.CheckoutSession, error) {
	req := payment.CheckoutRequest{
		OrderID:       order.ID,
		CartID:        order.CartID,
		CustomerEmail: s.customerEmail(ctx, logger, order.Owner),
		Items:         lineItems(priced),
	}

	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()

	session, err := s.gateway.CreateCheckoutSession(gctx, req)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindExternal {
			err = payment.ErrGatewayUnavailable.Wrap(err)
		}
		logger.Error("failed to create checkout session, order stays pending", slog.Any("error", err))
		return nil, err
	}

	if err := s.orderRepo.SetCheckoutSession(ctx, s.db, order.ID, session.ID); err != nil {
		// подтверждение всё равно найдёт заказ по order_id из метаданных сессии
		logger.Warn("failed to store checkout session id", slog.Any("error", err))
	}
	logger.Info("checkout session created", slog.String("session_id", session.ID))
	return session, nil
}

func (s *orderService) customerEmail(ctx context.Context, logger *slog.Logger, owner models.Owner) string {
	userID, ok := owner.UserID()
	if !ok || s.userRepo == nil {
		return ""
	}
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		logger.Warn("failed to load customer email", slog.Any("error", err))
		return ""
	}
	return user.Email
}

func (s *orderService) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.GatewayTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.GatewayTimeout)
}

func (s *orderService) CancelOrder(ctx context.Context, orderID int64) (*models.Order, bool, error) {
	const op = "service.OrderService.CancelOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("order_id", orderID))

	if orderID <= 0 {
		return nil, false, fmt.Errorf("%s: %w", op, ErrInvalidID)
	}

	order, err := s.orderRepo.GetOrderByID(ctx, s.db, orderID)
	if err != nil {
		logFailure(logger, "failed to get order", err)
		return nil, false, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}

	next, changed, err := order.Status.Transition(models.OrderStatusCancelled)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}
	if !changed {
		logger.Info("order already in terminal status, nothing to cancel", slog.String("status", string(order.Status)))
		return order, false, nil
	}

	ok, err := s.orderRepo.UpdateStatus(ctx, s.db, orderID, order.Status, next)
	if err != nil {
		logger.Error("failed to cancel order", slog.Any("error", err))
		return nil, false, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}
	if !ok {
		// статус успели поменять между чтением и записью, возвращаем актуальный
		current, err := s.orderRepo.GetOrderByID(ctx, s.db, orderID)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
		}
		logger.Info("order changed concurrently, nothing to cancel", slog.String("status", string(current.Status)))
		return current, false, nil
	}

	order.Status = next
	logger.Info("order cancelled")
	return order, true, nil
}

func (s *orderService) ConfirmPayment(ctx context.Context, orderID int64) (*models.Order, bool, error) {
	const op = "service.OrderService.ConfirmPayment"
	logger := s.log.With(slog.String("op", op), slog.Int64("order_id", orderID))

	if orderID <= 0 {
		return nil, false, fmt.Errorf("%s: %w", op, ErrInvalidID)
	}

	var (
		order   *models.Order
		changed bool
	)
	err := inTx(ctx, s.db, logger, func(tx *sql.Tx) error {
		// compare-and-set: из конкурентных подтверждений строку меняет только одно
		ok, err := s.orderRepo.UpdateStatus(ctx, tx, orderID, models.OrderStatusPending, models.OrderStatusPaid)
		if err != nil {
			return apperr.Persistence(err)
		}
		order, err = s.orderRepo.GetOrderByID(ctx, tx, orderID)
		if err != nil {
			return apperr.Persistence(err)
		}
		if !ok {
			if order.Status == models.OrderStatusPending {
				return storage.ErrConcurrentUpdate
			}
			return nil
		}
		changed = true

		// корзина удаляется только при первом переходе в PAID
		if order.CartID != nil {
			if err := s.cartRepo.DeleteCart(ctx, tx, *order.CartID); err != nil && !errors.Is(err, storage.ErrCartNotFound) {
				return apperr.Persistence(err)
			}
		}
		return nil
	})
	if err != nil {
		logFailure(logger, "failed to confirm payment", err)
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case changed:
		logger.Info("order paid")
	case order.Status == models.OrderStatusCancelled:
		logger.Warn("payment confirmed for cancelled order, ignoring")
	default:
		logger.Info("order already paid, nothing to do")
	}

	if order.Status == models.OrderStatusPaid && !order.NotificationSent {
		s.notifyPaid(ctx, logger, order)
	}
	return order, changed, nil
}

// notifyPaid сначала занимает флаг notification_sent, потом публикует событие,
// поэтому из конкурентных подтверждений публикует только одно.
// При сбое публикации флаг снимается и следующий повтор подтверждения попробует снова.
func (s *orderService) notifyPaid(ctx context.Context, logger *slog.Logger, order *models.Order) {
	if s.publisher == nil {
		return
	}
	claimed, err := s.orderRepo.MarkNotificationSent(ctx, s.db, order.ID)
	if err != nil {
		logger.Error("failed to mark notification sent", slog.Any("error", err))
		return
	}
	if !claimed {
		logger.Info("order paid event already sent")
		return
	}
	if err := s.publisher.PublishOrderPaid(ctx, order); err != nil {
		logger.Error("failed to publish order paid event", slog.Any("error", err))
		if err := s.orderRepo.ReleaseNotification(context.WithoutCancel(ctx), s.db, order.ID); err != nil {
			logger.Error("failed to release notification flag", slog.Any("error", err))
		}
		return
	}
	order.NotificationSent = true
}

func (s *orderService) ConfirmCheckoutSession(ctx context.Context, sessionID string) (*models.Order, error) {
	const op = "service.OrderService.ConfirmCheckoutSession"
	sessionID = strings.TrimSpace(sessionID)
	logger := s.log.With(slog.String("op", op), slog.String("session_id", sessionID))

	if sessionID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingSessionID)
	}

	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()

	session, err := s.gateway.GetSession(gctx, sessionID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = payment.ErrGatewayUnavailable.Wrap(err)
		}
		logFailure(logger, "failed to get checkout session", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !session.Paid() {
		logger.Warn("checkout session is not paid", slog.String("payment_status", session.PaymentStatus))
		return nil, fmt.Errorf("%s: %w", op, ErrPaymentIncomplete)
	}

	orderID, err := session.OrderID()
	if err != nil {
		logger.Warn("checkout session has no order id")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	order, _, err := s.ConfirmPayment(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// HandleWebhook подтверждает оплату по событию шлюза.
// Нерелевантные события и события, повтор которых ничего не изменит, подтверждаются без ошибки,
// чтобы шлюз не повторял доставку.
func (s *orderService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	const op = "service.OrderService.HandleWebhook"
	logger := s.log.With(slog.String("op", op))

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		logger.Warn("webhook rejected", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger = logger.With(slog.String("event_id", event.ID), slog.String("event_type", event.Type))
	result := &WebhookResult{EventID: event.ID, EventType: event.Type}

	if !event.ConfirmsPayment() {
		logger.Info("ignoring webhook event")
		return result, nil
	}

	orderID, err := event.Session.OrderID()
	if err != nil {
		logger.Warn("paid session without order id, ignoring", slog.String("session_id", event.Session.ID))
		return result, nil
	}
	result.OrderID = orderID

	if _, _, err := s.ConfirmPayment(ctx, orderID); err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			logger.Warn("paid session references unknown order, ignoring", slog.Int64("order_id", orderID))
			return result, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result.Handled = true
	return result, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64, filter models.Owner) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"

	if orderID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidID)
	}

	order, err := s.orderRepo.GetOrderByID(ctx, s.db, orderID)
	if err != nil {
		logFailure(s.log.With(slog.String("op", op), slog.Int64("order_id", orderID)), "failed to get order", err)
		return nil, fmt.Errorf("%s: %w", op, apperr.Persistence(err))
	}
	if filter.Valid() && !order.BelongsTo(filter) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrOrderNotFound)
	}
	return order, nil
}
