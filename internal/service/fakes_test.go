package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/linemk/eshop/internal/catalog"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/payment"
	"github.com/linemk/eshop/internal/storage"
	"github.com/stretchr/testify/require"
)

var errDBDown = errors.New("db down")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// fakeCartRepo — корзины в памяти; транзакции не эмулируются.
type fakeCartRepo struct {
	mu         sync.Mutex
	carts      map[int64]*models.Cart
	nextCartID int64
	nextItemID int64
	deleted    []int64
	failOn     string
}

var _ storage.CartStorage = (*fakeCartRepo)(nil)

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[int64]*models.Cart)}
}

// seed создаёт корзину с позициями и возвращает её id.
func (f *fakeCartRepo) seed(owner models.Owner, items ...models.CartItem) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.createLocked(owner)
	for _, it := range items {
		f.nextItemID++
		it.ID = f.nextItemID
		it.CartID = cart.ID
		cart.Items = append(cart.Items, it)
	}
	return cart.ID
}

func (f *fakeCartRepo) createLocked(owner models.Owner) *models.Cart {
	f.nextCartID++
	cart := &models.Cart{ID: f.nextCartID, Owner: owner}
	f.carts[cart.ID] = cart
	return cart
}

func (f *fakeCartRepo) byOwnerLocked(owner models.Owner) *models.Cart {
	for _, c := range f.carts {
		if c.Owner == owner {
			return c
		}
	}
	return nil
}

func (f *fakeCartRepo) fail(method string) error {
	if f.failOn == method {
		return errDBDown
	}
	return nil
}

func copyCart(c *models.Cart) *models.Cart {
	cp := *c
	cp.Items = append([]models.CartItem(nil), c.Items...)
	return &cp
}

func (f *fakeCartRepo) GetCartByOwner(ctx context.Context, q storage.Querier, owner models.Owner) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byOwnerLocked(owner)
	if c == nil {
		return nil, storage.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (f *fakeCartRepo) LockCartByOwner(ctx context.Context, tx *sql.Tx, owner models.Owner) (*models.Cart, error) {
	if err := f.fail("LockCartByOwner"); err != nil {
		return nil, err
	}
	return f.GetCartByOwner(ctx, tx, owner)
}

func (f *fakeCartRepo) LockCartByID(ctx context.Context, tx *sql.Tx, cartID int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[cartID]
	if !ok {
		return nil, storage.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (f *fakeCartRepo) GetOrCreateCart(ctx context.Context, tx *sql.Tx, owner models.Owner) (*models.Cart, error) {
	if err := f.fail("GetOrCreateCart"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byOwnerLocked(owner)
	if c == nil {
		c = f.createLocked(owner)
	}
	return copyCart(c), nil
}

func (f *fakeCartRepo) ListItems(ctx context.Context, q storage.Querier, cartID int64) ([]models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[cartID]
	if !ok {
		return nil, nil
	}
	items := append([]models.CartItem(nil), c.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeCartRepo) AddItemQuantity(ctx context.Context, tx *sql.Tx, cartID int64, productID string, quantity int) error {
	if err := f.fail("AddItemQuantity"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[cartID]
	if !ok {
		return storage.ErrCartNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			if c.Items[i].Quantity+quantity > models.MaxItemQuantity {
				return storage.ErrQuantityLimit
			}
			c.Items[i].Quantity += quantity
			return nil
		}
	}
	f.nextItemID++
	c.Items = append(c.Items, models.CartItem{ID: f.nextItemID, CartID: cartID, ProductID: productID, Quantity: quantity})
	return nil
}

func (f *fakeCartRepo) LockItem(ctx context.Context, tx *sql.Tx, cartID int64, productID string) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[cartID]
	if !ok {
		return nil, storage.ErrCartItemNotFound
	}
	it, ok := c.Item(productID)
	if !ok {
		return nil, storage.ErrCartItemNotFound
	}
	return &it, nil
}

func (f *fakeCartRepo) SetItemQuantity(ctx context.Context, tx *sql.Tx, itemID int64, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.carts {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].Quantity = quantity
				return nil
			}
		}
	}
	return storage.ErrCartItemNotFound
}

func (f *fakeCartRepo) DeleteItem(ctx context.Context, tx *sql.Tx, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.carts {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
	}
	return storage.ErrCartItemNotFound
}

func (f *fakeCartRepo) TouchCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	return nil
}

func (f *fakeCartRepo) DeleteCart(ctx context.Context, q storage.Querier, cartID int64) error {
	if err := f.fail("DeleteCart"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.carts[cartID]; !ok {
		return storage.ErrCartNotFound
	}
	delete(f.carts, cartID)
	f.deleted = append(f.deleted, cartID)
	return nil
}

// fakeOrderRepo — заказы в памяти со статусом через compare-and-set.
type fakeOrderRepo struct {
	mu         sync.Mutex
	orders     map[int64]*models.Order
	nextID     int64
	createErrs []error // ошибки для очередных вызовов CreateOrder
	sessions   map[int64]string
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*models.Order), sessions: make(map[int64]string)}
}

func (f *fakeOrderRepo) seed(cartID int64, owner models.Owner, status models.OrderStatus) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cid := cartID
	f.orders[f.nextID] = &models.Order{ID: f.nextID, CartID: &cid, Owner: owner, Status: status}
	return f.nextID
}

func (f *fakeOrderRepo) status(id int64) models.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, cartID int64, owner models.Owner) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return 0, err
	}
	f.nextID++
	cid := cartID
	f.orders[f.nextID] = &models.Order{ID: f.nextID, CartID: &cid, Owner: owner, Status: models.OrderStatusPending}
	return f.nextID, nil
}

func (f *fakeOrderRepo) AddOrderItem(ctx context.Context, tx *sql.Tx, orderID int64, item models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	item.ID = int64(len(o.Items) + 1)
	item.OrderID = orderID
	o.Items = append(o.Items, item)
	return nil
}

func (f *fakeOrderRepo) RecalculateTotal(ctx context.Context, tx *sql.Tx, orderID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return 0, storage.ErrOrderNotFound
	}
	o.TotalAmount = o.ItemsTotal()
	return o.TotalAmount, nil
}

func (f *fakeOrderRepo) ListOrdersByCart(ctx context.Context, q storage.Querier, cartID int64, status models.OrderStatus) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Order
	for _, o := range f.orders {
		if o.CartID != nil && *o.CartID == cartID && o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, q storage.Querier, orderID int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, q storage.Querier, orderID int64, from, to models.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (f *fakeOrderRepo) SetCheckoutSession(ctx context.Context, q storage.Querier, orderID int64, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	o.CheckoutSessionID = &sessionID
	f.sessions[orderID] = sessionID
	return nil
}

func (f *fakeOrderRepo) MarkNotificationSent(ctx context.Context, q storage.Querier, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.NotificationSent {
		return false, nil
	}
	o.NotificationSent = true
	return true, nil
}

func (f *fakeOrderRepo) ReleaseNotification(ctx context.Context, q storage.Querier, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	o.NotificationSent = false
	return nil
}

func (f *fakeOrderRepo) notificationSent(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].NotificationSent
}

type fakeUserRepo struct {
	users map[string]*models.User // ключ — email
	err   error
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.users[user.Email]; ok {
		return nil, storage.ErrUserExists
	}
	user.ID = int64(len(f.users) + 1)
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

type fakeCatalog map[string]*catalog.Product

var _ catalog.Catalog = fakeCatalog(nil)

func (f fakeCatalog) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func testCatalog() fakeCatalog {
	return fakeCatalog{
		"P1":      {ID: "P1", Name: "Shirt", UnitAmount: 1000, Currency: "eur", HasPrice: true, Active: true},
		"P2":      {ID: "P2", Name: "Cap", UnitAmount: 500, Currency: "eur", HasPrice: true, Discount: 10, Active: true},
		"USD":     {ID: "USD", Name: "Import", UnitAmount: 700, Currency: "usd", HasPrice: true, Active: true},
		"NOPRICE": {ID: "NOPRICE", Name: "Draft", Active: true},
	}
}

type fakeGateway struct {
	mu        sync.Mutex
	requests  []payment.CheckoutRequest
	createErr error
	sessions  map[string]*payment.SessionStatus
	event     *payment.Event
	parseErr  error
}

var _ payment.Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := fmt.Sprintf("cs_test_%d", len(f.requests))
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (f *fakeGateway) GetSession(ctx context.Context, sessionID string) (*payment.SessionStatus, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeGateway) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	orders []int64
	errs   []error
	// onPublish вызывается до публикации, без блокировки
	onPublish func()
}

func (f *fakePublisher) PublishOrderPaid(ctx context.Context, order *models.Order) error {
	if hook := f.onPublish; hook != nil {
		f.onPublish = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.orders = append(f.orders, order.ID)
	return nil
}
