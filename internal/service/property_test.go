//go:build property

package service_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/linemk/eshop/internal/service"
)

// Целочисленная формула round-half-up совпадает с десятичной.
func TestDiscountedUnitPriceMatchesIntegerRounding(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("price == (unit*(100-d)+50)/100", prop.ForAll(
		func(unit int64, discount int) bool {
			got, err := service.DiscountedUnitPrice(unit, discount)
			if err != nil {
				return false
			}
			return got == (unit*int64(100-discount)+50)/100
		},
		gen.Int64Range(0, 10_000_000),
		gen.IntRange(0, 100),
	))

	properties.Property("discount never raises the price", prop.ForAll(
		func(unit int64, discount int) bool {
			got, err := service.DiscountedUnitPrice(unit, discount)
			return err == nil && got >= 0 && got <= unit
		},
		gen.Int64Range(0, 10_000_000),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// Сумма добавленных количеств равна итоговому количеству позиции.
func TestAddItemAccumulates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("quantities accumulate", prop.ForAll(
		func(quantities []int) bool {
			if len(quantities) == 0 {
				return true
			}
			db, mock, err := sqlmock.New()
			if err != nil {
				return false
			}
			defer db.Close()
			for range quantities {
				mock.ExpectBegin()
				mock.ExpectCommit()
			}

			svc := service.NewCartService(newTestLogger(), db, newFakeCartRepo(), testCatalog())
			owner := models.GuestOwner("g-prop")
			want := 0
			for _, q := range quantities {
				if err := svc.AddItem(context.Background(), owner, "P1", q); err != nil {
					return false
				}
				want += q
			}

			cart, err := svc.GetCart(context.Background(), owner)
			if err != nil || len(cart.Items) != 1 {
				return false
			}
			return cart.Items[0].Quantity == want && mock.ExpectationsWereMet() == nil
		},
		gen.SliceOf(gen.IntRange(1, 20)),
	))

	properties.TestingRun(t)
}

// Слияние складывает количества по каждому товару.
func TestMergeAddsQuantities(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("merged quantity is the sum", prop.ForAll(
		func(userQty, guestQty int) bool {
			db, mock, err := sqlmock.New()
			if err != nil {
				return false
			}
			defer db.Close()
			mock.ExpectBegin()
			mock.ExpectCommit()

			carts := newFakeCartRepo()
			carts.seed(models.UserOwner(1), models.CartItem{ProductID: "P1", Quantity: userQty})
			carts.seed(models.GuestOwner("g"), models.CartItem{ProductID: "P1", Quantity: guestQty})

			svc := service.NewMergeService(newTestLogger(), db, carts)
			if _, err := svc.MergeGuestCart(context.Background(), 1, "g"); err != nil {
				return false
			}
			cart, err := carts.GetCartByOwner(context.Background(), db, models.UserOwner(1))
			if err != nil {
				return false
			}
			it, ok := cart.Item("P1")
			return ok && it.Quantity == userQty+guestQty
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}
