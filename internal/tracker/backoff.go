package tracker

import (
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// reconnectBackoff doubles the reconnect delay from min up to max and starts
// over from min after Reset.
type reconnectBackoff struct {
	mu   sync.Mutex
	min  time.Duration
	max  time.Duration
	next retry.Backoff
}

func newReconnectBackoff(min, max time.Duration) *reconnectBackoff {
	b := &reconnectBackoff{min: min, max: max}
	b.Reset()
	return b
}

// Next returns the delay to wait before the upcoming reconnect attempt.
func (b *reconnectBackoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, stop := b.next.Next()
	if stop || d <= 0 {
		return b.max
	}
	return d
}

func (b *reconnectBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = retry.WithCappedDuration(b.max, retry.NewExponential(b.min))
}
