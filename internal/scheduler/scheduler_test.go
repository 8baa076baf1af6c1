package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/domain"
	"tokenpulse/internal/logging"
	"tokenpulse/internal/store/memory"
)

type stubPricing struct {
	mu     sync.Mutex
	calls  int32
	err    error
	onCall func(mint string)
}

func (p *stubPricing) UpdateMint(ctx context.Context, mint string) error {
	atomic.AddInt32(&p.calls, 1)
	if p.onCall != nil {
		p.onCall(mint)
	}
	return p.err
}

type stubValidator struct{ err error }

func (v *stubValidator) Validate(ctx context.Context, mint string) error { return v.err }

func TestEnrol_IsIdempotent(t *testing.T) {
	c := cache.NewMemoryStore()
	s := New(&stubPricing{}, &stubValidator{}, c, memory.NewStore(), logging.New("test"), time.Hour, 1)

	require.NoError(t, s.Enrol(context.Background(), "mintA"))
	require.NoError(t, s.Enrol(context.Background(), "mintA"))

	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestEnrol_RejectsInvalidMint(t *testing.T) {
	c := cache.NewMemoryStore()
	s := New(&stubPricing{}, &stubValidator{err: apperr.InvalidMint("m", "bad")}, c, memory.NewStore(), logging.New("test"), time.Hour, 1)

	err := s.Enrol(context.Background(), "mintA")
	assert.Error(t, err)

	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	assert.Equal(t, 0, n)
}

func TestBanAndRemove_PurgesAndStopsJob(t *testing.T) {
	c := cache.NewMemoryStore()
	st := memory.NewStore()
	require.NoError(t, st.WriteSnapshot(context.Background(), domain.PriceSnapshot{Mint: "mintA"}))

	s := New(&stubPricing{}, &stubValidator{}, c, st, logging.New("test"), time.Hour, 1)
	require.NoError(t, s.Enrol(context.Background(), "mintA"))

	s.BanAndRemove(context.Background(), "mintA")

	_, err := st.GetLatest(context.Background(), "mintA")
	assert.Error(t, err)

	_, banned, _ := c.Get(context.Background(), cache.InvalidTokenKey("mintA"))
	assert.True(t, banned)

	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	assert.Equal(t, 0, n)
}

func TestProcess_InvalidMintBansInsteadOfRetrying(t *testing.T) {
	c := cache.NewMemoryStore()
	st := memory.NewStore()
	pricing := &stubPricing{err: apperr.InvalidMint("mintA", "owner mismatch")}
	s := New(pricing, &stubValidator{}, c, st, logging.New("test"), time.Hour, 1)

	s.process(context.Background(), 0, "mintA")

	_, banned, _ := c.Get(context.Background(), cache.InvalidTokenKey("mintA"))
	assert.True(t, banned)
}

func TestProcess_BannedMintObliteratesWithoutCallingPricing(t *testing.T) {
	c := cache.NewMemoryStore()
	pricing := &stubPricing{}
	s := New(pricing, &stubValidator{}, c, memory.NewStore(), logging.New("test"), time.Hour, 1)
	require.NoError(t, c.SetWithTTL(context.Background(), cache.InvalidTokenKey("mintA"), []byte("banned"), time.Hour))

	s.process(context.Background(), 0, "mintA")

	assert.Equal(t, int32(0), atomic.LoadInt32(&pricing.calls))
}

func TestListRepeating_ReflectsActiveLease(t *testing.T) {
	c := cache.NewMemoryStore()
	s := New(&stubPricing{}, &stubValidator{}, c, memory.NewStore(), logging.New("test"), time.Hour, 1)
	require.NoError(t, s.Enrol(context.Background(), "mintA"))

	mints, err := s.ListRepeating(context.Background())
	require.NoError(t, err)
	assert.Contains(t, mints, "mintA")
}
