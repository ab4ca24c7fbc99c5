package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/linemk/eshop/internal/service"
)

// SignatureHeader — заголовок с подписью вебхука Stripe.
const SignatureHeader = "Stripe-Signature"

const maxWebhookBody = int64(65536)

type WebhookResponse struct {
	Received bool   `json:"received"`
	Handled  bool   `json:"handled"`
	EventID  string `json:"event_id,omitempty"`
}

// WebhookHandler обрабатывает POST /webhook/order/paid.
// Нерелевантные события подтверждаются 200, иначе шлюз будет повторять доставку;
// при неверной подписи отвечаем 400, при сбое хранилища 500, чтобы доставку повторили.
func WebhookHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.WebhookHandler"
		logger := log.With(slog.String("op", op))

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			logger.Warn("failed to read webhook body", slog.Any("error", err))
			writeError(w, logger, ErrInvalidRequest.Wrap(err))
			return
		}

		res, err := orders.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, WebhookResponse{Received: true, Handled: res.Handled, EventID: res.EventID})
	}
}
