package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordedSleep struct {
	calls []time.Duration
}

func (r *recordedSleep) sleep(d time.Duration) { r.calls = append(r.calls, d) }

func newTestTimingDelay(cfg TimingConfig, now time.Time) (*TimingDelay, *recordedSleep) {
	rec := &recordedSleep{}
	td := NewTimingDelay(cfg)
	td.sleep = rec.sleep
	td.now = func() time.Time { return now }
	return td, rec
}

func TestTimingDelay_Wait_OnFailure(t *testing.T) {
	td, rec := newTestTimingDelay(TimingConfig{BaseDelay: 100 * time.Millisecond, Jitter: 50 * time.Millisecond}, time.Now())

	td.Wait(false)

	assert.Len(t, rec.calls, 1)
	assert.GreaterOrEqual(t, rec.calls[0], 100*time.Millisecond)
	assert.Less(t, rec.calls[0], 150*time.Millisecond)
}

func TestTimingDelay_Wait_OnSuccess_NoDelay(t *testing.T) {
	td, rec := newTestTimingDelay(TimingConfig{BaseDelay: 100 * time.Millisecond}, time.Now())

	td.Wait(true)

	assert.Empty(t, rec.calls)
}

func TestTimingDelay_Wait_OnSuccess_WithDelay(t *testing.T) {
	td, rec := newTestTimingDelay(TimingConfig{BaseDelay: 100 * time.Millisecond, DelayOnSuccess: true}, time.Now())

	td.Wait(true)

	assert.Equal(t, []time.Duration{100 * time.Millisecond}, rec.calls)
}

func TestTimingDelay_WaitFrom_AdjustsForElapsedTime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	td, rec := newTestTimingDelay(TimingConfig{BaseDelay: 100 * time.Millisecond}, now)

	td.WaitFrom(now.Add(-30*time.Millisecond), false)

	assert.Equal(t, []time.Duration{70 * time.Millisecond}, rec.calls)
}

func TestTimingDelay_WaitFrom_NoWaitIfAlreadyExceeded(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	td, rec := newTestTimingDelay(TimingConfig{BaseDelay: 50 * time.Millisecond}, now)

	td.WaitFrom(now.Add(-100*time.Millisecond), false)

	assert.Empty(t, rec.calls)
}

func TestTimingDelay_RealSleep(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelay: 20 * time.Millisecond})
	start := time.Now()

	td.WaitFrom(start, false)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
