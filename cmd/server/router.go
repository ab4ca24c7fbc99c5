package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/eshop/internal/app/handlers"
	"github.com/linemk/eshop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/eshop/internal/lib/logger/handlers/urllog"
	"github.com/linemk/eshop/internal/service"
)

type services struct {
	auth   service.AuthServiceInterface
	carts  service.CartService
	orders service.OrderService
}

func newRouter(log *slog.Logger, jwtSecret string, svc services) chi.Router {
	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// эндпоинты аутентификации
	router.Post("/auth/sign-up", handlers.SignUpHandler(log, svc.auth))
	router.Post("/auth/sign-in", handlers.SignInHandler(log, svc.auth))
	router.With(jwtmiddleware.NewJWTMiddleware(jwtSecret)).
		Get("/auth/me", handlers.MeHandler(log, svc.auth))

	// корзина и заказы доступны и гостям; токен, если есть, определяет пользователя
	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewOptionalJWTMiddleware(jwtSecret))

		r.Get("/cart", handlers.GetCartHandler(log, svc.carts))
		r.Post("/cart/add", handlers.AddItemHandler(log, svc.carts))
		r.Post("/cart/remove", handlers.RemoveItemHandler(log, svc.carts))

		r.Get("/order", handlers.GetOrderHandler(log, svc.orders))
		r.Post("/order/create", handlers.CreateOrderHandler(log, svc.orders))
		r.Post("/order/cancel", handlers.CancelOrderHandler(log, svc.orders, svc.carts))
		r.Post("/order/checkout/success", handlers.CheckoutSuccessHandler(log, svc.orders))
	})

	// вебхук шлюза проверяется подписью, а не токеном
	router.Post("/webhook/order/paid", handlers.WebhookHandler(log, svc.orders))

	return router
}
