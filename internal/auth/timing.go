package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for credential-check timing equalization
type TimingConfig struct {
	BaseDelay   time.Duration // Minimum total duration of a failed credential check
	RandomDelay time.Duration // Upper bound of random jitter added on top
}

// TimingDelay pads failed credential checks to a minimum duration so that
// unknown emails and wrong passwords are not distinguishable by latency
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandDuration returns a secure random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0
	}

	return time.Duration(binary.BigEndian.Uint64(randomBytes) % uint64(max))
}

// WaitFrom blocks until at least base+jitter has elapsed since start.
// It returns early when ctx is cancelled.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	if td == nil {
		return
	}

	target := td.config.BaseDelay + cryptoRandDuration(td.config.RandomDelay)
	remaining := target - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
