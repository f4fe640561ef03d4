package service

import (
	"bank_ledger/pkg/rabbitmq"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelAlert Channel = "alert"
)

type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

type LogSender struct {
	Channel Channel
	Logger  *slog.Logger
}

func (s LogSender) Send(ctx context.Context, recipient, subject, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Notification sent",
		slog.String("channel", string(s.Channel)),
		slog.String("recipient", recipient),
		slog.String("subject", subject),
		slog.String("message", body))
	return nil
}

type NotificationCommand struct {
	Channel   Channel   `json:"channel"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type QueueSender struct {
	Channel   Channel
	Exchange  string
	Publisher rabbitmq.Publisher
}

func (s QueueSender) Send(ctx context.Context, recipient, subject, body string) error {
	cmd := NotificationCommand{
		Channel:   s.Channel,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Publisher.Publish(ctx, s.Exchange, "notification."+string(s.Channel), cmd); err != nil {
		return fmt.Errorf("queue %s notification: %w", s.Channel, err)
	}
	return nil
}

type BreakerSettings struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// BreakerSender stops calling a failing sender until the breaker timeout
// passes, so a dead channel costs nothing per transfer.
type BreakerSender struct {
	next    Sender
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerSender(name string, next Sender, settings BreakerSettings, logger *slog.Logger) *BreakerSender {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Sender circuit breaker state changed",
				slog.String("sender", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &BreakerSender{next: next, breaker: breaker}
}

func (s *BreakerSender) Send(ctx context.Context, recipient, subject, body string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.next.Send(ctx, recipient, subject, body)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", s.breaker.Name(), err)
	}
	return nil
}

func (s *BreakerSender) State() gobreaker.State {
	return s.breaker.State()
}
