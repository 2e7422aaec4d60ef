package auth

import (
	"crypto/rand"
	"math/big"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay      time.Duration // Minimum time a failed attempt takes
	Jitter         time.Duration // Random extra delay in [0, Jitter)
	DelayOnSuccess bool          // If true, delay even on successful login
}

// DefaultTimingConfig is used by the credential service when nothing else is configured.
var DefaultTimingConfig = TimingConfig{
	BaseDelay: 250 * time.Millisecond,
	Jitter:    100 * time.Millisecond,
}

// TimingDelay pads authentication failures so "no such user" and
// "wrong password" take about the same time.
type TimingDelay struct {
	config TimingConfig
	now    func() time.Time
	sleep  func(time.Duration)
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Wait sleeps for the full target delay.
func (td *TimingDelay) Wait(success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	td.sleep(td.target())
}

// WaitFrom tops up the time already spent since start until the target delay is reached.
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}

	elapsed := td.now().Sub(start)
	if remaining := td.target() - elapsed; remaining > 0 {
		td.sleep(remaining)
	}
}

func (td *TimingDelay) target() time.Duration {
	delay := td.config.BaseDelay
	if td.config.Jitter > 0 {
		// crypto/rand so the jitter can't be predicted and subtracted out
		n, err := rand.Int(rand.Reader, big.NewInt(int64(td.config.Jitter)))
		if err == nil {
			delay += time.Duration(n.Int64())
		}
	}
	return delay
}
