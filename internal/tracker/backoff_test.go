package tracker

import (
	"testing"
	"time"
)

func TestReconnectBackoff_Sequence(t *testing.T) {
	b := newReconnectBackoff(time.Second, 30*time.Second)

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	for i, w := range want {
		if got := b.Next(); got != w*time.Second {
			t.Fatalf("attempt %d: got %v, want %v", i, got, w*time.Second)
		}
	}
}

func TestReconnectBackoff_Reset(t *testing.T) {
	b := newReconnectBackoff(time.Second, 30*time.Second)
	for i := 0; i < 7; i++ {
		b.Next()
	}

	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Fatalf("after reset: got %v, want 1s", got)
	}
	if got := b.Next(); got != 2*time.Second {
		t.Fatalf("second after reset: got %v, want 2s", got)
	}
}
