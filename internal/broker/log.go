package broker

import (
	"context"

	"go.uber.org/zap"

	"github.com/xenking/recycle-market/internal/domain/notification"
)

var _ notification.Publisher = LogPublisher{}

// LogPublisher logs notifications instead of delivering them. It is used when
// no Kafka brokers are configured.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(lg *zap.Logger) LogPublisher {
	return LogPublisher{lg: lg}
}

// Publish implements notification.Publisher.
func (p LogPublisher) Publish(_ context.Context, n notification.Notification) error {
	p.lg.Info("Notification",
		zap.String("id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("type", string(n.Type)),
		zap.String("order_id", n.OrderID),
		zap.String("title", n.Title.En),
	)
	return nil
}
