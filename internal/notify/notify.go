// Package notify публикует события об оплаченных заказах.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/eshop/internal/domain/models"
	"github.com/segmentio/kafka-go"
)

const EventOrderPaid = "order.paid"

// eventNamespace задаёт пространство имён для идентификаторов событий
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:eshop:events"))

// OrderPaidEventID одинаков для всех публикаций по одному заказу, по нему подписчики отбрасывают дубли.
func OrderPaidEventID(orderID int64) string {
	return uuid.NewSHA1(eventNamespace, []byte(EventOrderPaid+":"+strconv.FormatInt(orderID, 10))).String()
}

// OrderPaidEvent — событие для подписчиков (письмо покупателю, склад).
type OrderPaidEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OrderID     int64     `json:"order_id"`
	CartID      *int64    `json:"cart_id,omitempty"`
	UserID      *int64    `json:"user_id,omitempty"`
	GuestID     *string   `json:"guest_id,omitempty"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewOrderPaidEvent(order *models.Order, now time.Time) OrderPaidEvent {
	return OrderPaidEvent{
		ID:          OrderPaidEventID(order.ID),
		Type:        EventOrderPaid,
		OrderID:     order.ID,
		CartID:      order.CartID,
		UserID:      order.Owner.UserIDPtr(),
		GuestID:     order.Owner.GuestIDPtr(),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency(),
		OccurredAt:  now.UTC(),
	}
}

type Publisher interface {
	PublishOrderPaid(ctx context.Context, order *models.Order) error
}

// messageWriter — подмножество *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
		MaxAttempts:  3,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// PublishOrderPaid пишет событие с ключом order_id, чтобы события одного заказа шли в одну партицию.
func (p *KafkaPublisher) PublishOrderPaid(ctx context.Context, order *models.Order) error {
	event := NewOrderPaidEvent(order, p.now())
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order paid event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(order.ID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderPaid)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write order paid event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher только пишет событие в лог, используется без настроенной Kafka.
type LogPublisher struct {
	log *slog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) PublishOrderPaid(_ context.Context, order *models.Order) error {
	event := NewOrderPaidEvent(order, time.Now())
	p.log.Info("order paid",
		slog.String("event_id", event.ID),
		slog.Int64("order_id", event.OrderID),
		slog.Int64("total_amount", event.TotalAmount),
		slog.String("currency", event.Currency),
	)
	return nil
}
