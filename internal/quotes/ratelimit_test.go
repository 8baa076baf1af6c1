package quotes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_EnforcesMinimumInterval(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	assert.NoError(t, th.Wait(ctx))
	assert.NoError(t, th.Wait(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestThrottle_RespectsContextCancellation(t *testing.T) {
	th := NewThrottle(time.Hour)
	ctx := context.Background()
	assert.NoError(t, th.Wait(ctx))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, th.Wait(cancelled))
}

func TestThrottle_PenalizeClampsToMinimumTwoSecondFloor(t *testing.T) {
	th := NewThrottle(time.Millisecond)

	th.Penalize(0) // below the 2s floor; should clamp up to it

	th.mu.Lock()
	until := th.blockedUntil
	th.mu.Unlock()
	assert.True(t, time.Until(until) > 1900*time.Millisecond)
}

func TestThrottle_PenalizeHonoursLargerRetryAfter(t *testing.T) {
	th := NewThrottle(time.Millisecond)

	th.Penalize(10 * time.Second)

	th.mu.Lock()
	until := th.blockedUntil
	th.mu.Unlock()
	assert.True(t, time.Until(until) > 9*time.Second)
}

func TestThrottle_WaitRespectsPenaltyWindowOverShortContext(t *testing.T) {
	th := NewThrottle(time.Millisecond)
	th.Penalize(time.Hour) // far longer than minInterval alone would wait

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, th.Wait(ctx), "Wait should still be blocked by the penalty window when the context expires first")
}
