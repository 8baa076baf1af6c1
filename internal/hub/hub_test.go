package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/domain"
	"tokenpulse/internal/logging"
)

type stubValidator struct{ err error }

func (v *stubValidator) Validate(ctx context.Context, mint string) error { return v.err }

type stubPricing struct {
	current     *domain.PriceSnapshot
	updateCalls int
}

func (p *stubPricing) CurrentOf(ctx context.Context, mint string) (*domain.PriceSnapshot, error) {
	return p.current, nil
}

func (p *stubPricing) UpdateMint(ctx context.Context, mint string) error {
	p.updateCalls++
	p.current = &domain.PriceSnapshot{Mint: mint}
	return nil
}

type stubScheduler struct{ enrolled []string }

func (s *stubScheduler) Enrol(ctx context.Context, mint string) error {
	s.enrolled = append(s.enrolled, mint)
	return nil
}

func recvEvent(t *testing.T, conn *Connection) map[string]any {
	t.Helper()
	select {
	case body := <-conn.Send:
		var m map[string]any
		require.NoError(t, json.Unmarshal(body, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSubscribe_InvalidMintSendsSubscriptionError(t *testing.T) {
	h := New(&stubValidator{err: apperr.InvalidMint("badmint", "too short")}, &stubPricing{}, &stubScheduler{}, cache.NewMemoryStore(), logging.New("test"))
	conn := NewConnection("c1")

	h.Subscribe(context.Background(), conn, "badmint")

	ev := recvEvent(t, conn)
	assert.Equal(t, "subscription_error", ev["event"])
	assert.Equal(t, codeInvalidTokenMint, ev["code"])
}

func TestSubscribe_ComputesSnapshotWhenAbsentThenSendsSuccess(t *testing.T) {
	pricing := &stubPricing{}
	scheduler := &stubScheduler{}
	h := New(&stubValidator{}, pricing, scheduler, cache.NewMemoryStore(), logging.New("test"))
	conn := NewConnection("c1")

	h.Subscribe(context.Background(), conn, "mintA")

	first := recvEvent(t, conn)
	assert.Equal(t, "price_update", first["event"])

	second := recvEvent(t, conn)
	assert.Equal(t, "subscription_success", second["event"])
	assert.Equal(t, float64(1), second["totalSubscriptions"])

	assert.Equal(t, 1, pricing.updateCalls)
	assert.Equal(t, []string{"mintA"}, scheduler.enrolled)
}

func TestSubscribe_SecondCallToSameMintReportsAlreadySubscribed(t *testing.T) {
	pricing := &stubPricing{current: &domain.PriceSnapshot{Mint: "mintA"}}
	h := New(&stubValidator{}, pricing, &stubScheduler{}, cache.NewMemoryStore(), logging.New("test"))
	conn := NewConnection("c1")

	h.Subscribe(context.Background(), conn, "mintA")
	recvEvent(t, conn) // price_update
	recvEvent(t, conn) // subscription_success

	h.Subscribe(context.Background(), conn, "mintA")
	ev := recvEvent(t, conn)
	assert.Equal(t, "subscription_status", ev["event"])
	assert.Equal(t, statusAlreadySubscribed, ev["status"])
}

func TestUnsubscribe_RemovesFromRoomAndReportsTotal(t *testing.T) {
	pricing := &stubPricing{current: &domain.PriceSnapshot{Mint: "mintA"}}
	h := New(&stubValidator{}, pricing, &stubScheduler{}, cache.NewMemoryStore(), logging.New("test"))
	conn := NewConnection("c1")

	h.Subscribe(context.Background(), conn, "mintA")
	recvEvent(t, conn)
	recvEvent(t, conn)

	h.Unsubscribe(conn, "mintA")
	ev := recvEvent(t, conn)
	assert.Equal(t, "unsubscription_success", ev["event"])
	assert.Equal(t, float64(0), ev["totalSubscriptions"])
	assert.False(t, conn.subscribedTo("mintA"))
}

func TestBroadcast_OnlyReachesSubscribedConnections(t *testing.T) {
	pricing := &stubPricing{current: &domain.PriceSnapshot{Mint: "mintA"}}
	h := New(&stubValidator{}, pricing, &stubScheduler{}, cache.NewMemoryStore(), logging.New("test"))
	subscribed := NewConnection("c1")
	bystander := NewConnection("c2")

	h.Subscribe(context.Background(), subscribed, "mintA")
	recvEvent(t, subscribed)
	recvEvent(t, subscribed)

	h.broadcast("mintA", priceUpdateEvent{Event: "price_update", Data: domain.PriceSnapshot{Mint: "mintA"}})

	recvEvent(t, subscribed)
	select {
	case <-bystander.Send:
		t.Fatal("bystander should not have received a broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisconnect_LeavesEveryRoom(t *testing.T) {
	pricing := &stubPricing{current: &domain.PriceSnapshot{Mint: "mintA"}}
	h := New(&stubValidator{}, pricing, &stubScheduler{}, cache.NewMemoryStore(), logging.New("test"))
	conn := NewConnection("c1")

	h.Subscribe(context.Background(), conn, "mintA")
	recvEvent(t, conn)
	recvEvent(t, conn)

	h.Disconnect(conn)

	h.mu.RLock()
	_, exists := h.rooms["mintA"]
	h.mu.RUnlock()
	assert.False(t, exists)
}
