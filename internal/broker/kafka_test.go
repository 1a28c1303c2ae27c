package broker

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/recycle-market/internal/domain/i18n"
	"github.com/xenking/recycle-market/internal/domain/notification"
)

// --- Mock implementations ---

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

// --- Tests ---

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, ParseBrokers(" kafka-1:9092, ,kafka-2:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "")
	require.Error(t, err)
}

func TestKafkaPublisherPublish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{w: w}
	n := notification.New("u1", notification.TypeOrderCompleted,
		i18n.New("Order completed", "اكتمل الطلب"), i18n.New("You earned 15 points", ""),
		"o1", map[string]string{"points": "15"}, time.Now())

	require.NoError(t, p.Publish(context.Background(), *n))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "u1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, string(notification.TypeOrderCompleted), string(msg.Headers[0].Value))

	var got notification.Notification
	require.NoError(t, got.Decode(jx.DecodeBytes(msg.Value)))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "o1", got.OrderID)
	assert.Equal(t, "15", got.Payload["points"])
	assert.Equal(t, "اكتمل الطلب", got.Title.Ar)
}

func TestKafkaPublisherError(t *testing.T) {
	brokerDown := errors.New("broker down")
	p := &KafkaPublisher{w: &recordingWriter{err: brokerDown}}
	n := notification.New("u1", notification.TypeOrderCreated, i18n.New("t", ""), i18n.New("b", ""), "", nil, time.Now())

	err := p.Publish(context.Background(), *n)
	require.ErrorIs(t, err, brokerDown)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(zaptest.NewLogger(t))
	n := notification.New("u1", notification.TypeOrderCreated, i18n.New("t", ""), i18n.New("b", ""), "", nil, time.Now())
	assert.NoError(t, p.Publish(context.Background(), *n))
}
