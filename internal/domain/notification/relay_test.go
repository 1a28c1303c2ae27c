package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/recycle-market/internal/domain/i18n"
)

// --- Mock implementations ---

type mockRepo struct {
	mu        sync.Mutex
	pending   []Notification
	delivered map[string]time.Time
	failed    map[string]string
	next      map[string]time.Time
}

func newMockRepo(ns ...Notification) *mockRepo {
	return &mockRepo{
		pending:   ns,
		delivered: make(map[string]time.Time),
		failed:    make(map[string]string),
		next:      make(map[string]time.Time),
	}
}

func (m *mockRepo) ListForUser(context.Context, string, bool) ([]Notification, error) {
	return nil, nil
}

func (m *mockRepo) SetRead(context.Context, string, string, bool) error {
	return nil
}

func (m *mockRepo) Delete(context.Context, string, []string) (int, error) {
	return 0, nil
}

func (m *mockRepo) Pending(_ context.Context, _ time.Time, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *mockRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[id] = at
	return nil
}

func (m *mockRepo) MarkFailed(_ context.Context, id, reason string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = reason
	m.next[id] = next
	return nil
}

type mockPublisher struct {
	fail map[string]error
	got  []string
	slow bool
}

func (m *mockPublisher) Publish(ctx context.Context, n Notification) error {
	if m.slow {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := m.fail[n.ID]; err != nil {
		return err
	}
	m.got = append(m.got, n.ID)
	return nil
}

// --- Tests ---

func testNotification(id string) Notification {
	n := New("u1", TypeOrderCompleted, i18n.New("Order completed", "تم الطلب"), i18n.New("Thanks", ""), "o1", nil, time.Now())
	n.ID = id
	return *n
}

func TestRelay_Flush(t *testing.T) {
	repo := newMockRepo(testNotification("n1"), testNotification("n2"))
	pub := &mockPublisher{fail: map[string]error{"n2": errors.New("broker down")}}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	r := NewRelay(repo, pub, zap.NewNop(), RelayConfig{RetryInitial: time.Second})
	r.now = func() time.Time { return now }

	delivered, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"n1"}, pub.got)
	assert.Equal(t, now, repo.delivered["n1"])
	assert.Equal(t, "broker down", repo.failed["n2"])
	assert.Equal(t, now.Add(time.Second), repo.next["n2"])
}

func TestRelay_PublishTimeout(t *testing.T) {
	repo := newMockRepo(testNotification("n1"))
	r := NewRelay(repo, &mockPublisher{slow: true}, zap.NewNop(), RelayConfig{PublishTimeout: 10 * time.Millisecond})

	delivered, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Contains(t, repo.failed["n1"], "deadline exceeded")
}

func TestRelay_RetryDelay(t *testing.T) {
	r := NewRelay(newMockRepo(), &mockPublisher{}, zap.NewNop(), RelayConfig{
		RetryInitial: time.Second,
		RetryMax:     10 * time.Second,
	})

	assert.Equal(t, time.Second, r.retryDelay(1))
	assert.Equal(t, 1500*time.Millisecond, r.retryDelay(2))
	assert.Equal(t, 10*time.Second, r.retryDelay(20))
}

func TestNew_FallsBackToEnglish(t *testing.T) {
	n := testNotification("n1")
	assert.Equal(t, "Thanks", n.Body.Ar)
	assert.Equal(t, "تم الطلب", n.Title.Ar)
}

func TestNotification_Decode(t *testing.T) {
	n := testNotification("n1")
	n.Payload = map[string]string{"reason": "out of area"}

	b, err := n.MarshalJSON()
	require.NoError(t, err)

	var got Notification
	require.NoError(t, got.Decode(jx.DecodeBytes(b)))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.Title, got.Title)
	assert.Equal(t, TypeOrderCompleted, got.Type)
	assert.Equal(t, "out of area", got.Payload["reason"])
	assert.True(t, n.CreatedAt.Equal(got.CreatedAt))
}
