package service_test

import (
	"context"
	"testing"

	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/service"
	"github.com/linemk/eshop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeService_IntoEmptyUserCart(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	carts := newFakeCartRepo()
	carts.seed(models.GuestOwner("g1"), models.CartItem{ProductID: "P1", Quantity: 2})
	svc := service.NewMergeService(newTestLogger(), db, carts)

	res, err := svc.MergeGuestCart(context.Background(), 7, "g1")
	require.NoError(t, err)
	assert.Equal(t, service.MergeMerged, res.Outcome)
	assert.Equal(t, 1, res.ItemsMerged)

	userCart, err := carts.GetCartByOwner(context.Background(), db, models.UserOwner(7))
	require.NoError(t, err)
	require.Len(t, userCart.Items, 1)
	assert.Equal(t, "P1", userCart.Items[0].ProductID)
	assert.Equal(t, 2, userCart.Items[0].Quantity)

	_, err = carts.GetCartByOwner(context.Background(), db, models.GuestOwner("g1"))
	assert.ErrorIs(t, err, storage.ErrCartNotFound, "guest cart must be deleted")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeService_AddsQuantities(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	carts := newFakeCartRepo()
	carts.seed(models.UserOwner(7), models.CartItem{ProductID: "P1", Quantity: 3})
	carts.seed(models.GuestOwner("g1"),
		models.CartItem{ProductID: "P1", Quantity: 2},
		models.CartItem{ProductID: "P2", Quantity: 1},
	)
	svc := service.NewMergeService(newTestLogger(), db, carts)

	_, err := svc.MergeGuestCart(context.Background(), 7, "g1")
	require.NoError(t, err)

	userCart, err := carts.GetCartByOwner(context.Background(), db, models.UserOwner(7))
	require.NoError(t, err)
	p1, ok := userCart.Item("P1")
	require.True(t, ok)
	assert.Equal(t, 5, p1.Quantity)
	p2, ok := userCart.Item("P2")
	require.True(t, ok)
	assert.Equal(t, 1, p2.Quantity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeService_NothingToMerge(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	carts := newFakeCartRepo()
	svc := service.NewMergeService(newTestLogger(), db, carts)

	res, err := svc.MergeGuestCart(context.Background(), 7, "g-missing")
	require.NoError(t, err)
	assert.Equal(t, service.MergeNothing, res.Outcome)

	// корзина пользователя не создаётся впустую
	_, err = carts.GetCartByOwner(context.Background(), db, models.UserOwner(7))
	assert.ErrorIs(t, err, storage.ErrCartNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeService_FailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	carts := newFakeCartRepo()
	carts.seed(models.GuestOwner("g1"), models.CartItem{ProductID: "P1", Quantity: 2})
	carts.failOn = "DeleteCart"
	svc := service.NewMergeService(newTestLogger(), db, carts)

	_, err := svc.MergeGuestCart(context.Background(), 7, "g1")
	assert.ErrorIs(t, err, service.ErrMergeFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeService_InvalidIdentifiers(t *testing.T) {
	db, mock := newMockDB(t)
	svc := service.NewMergeService(newTestLogger(), db, newFakeCartRepo())

	_, err := svc.MergeGuestCart(context.Background(), 0, "g1")
	assert.ErrorIs(t, err, service.ErrInvalidOwner)
	_, err = svc.MergeGuestCart(context.Background(), 1, "  ")
	assert.ErrorIs(t, err, service.ErrInvalidOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}
