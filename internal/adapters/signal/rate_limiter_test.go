package signal

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts rejected")
	}
	if rl.Allow("a") {
		t.Error("third attempt inside the window allowed")
	}
	if !rl.Allow("b") {
		t.Error("other key limited")
	}

	now = now.Add(1100 * time.Millisecond)
	if !rl.Allow("a") {
		t.Error("attempt after the window rejected")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for range 100 {
		if !rl.Allow("a") {
			t.Fatal("disabled limiter rejected")
		}
	}
}
