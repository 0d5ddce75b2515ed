package signal

import (
	"testing"
	"time"
)

func TestChatRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewChatRateLimiter(3, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("u1") {
			t.Fatalf("message %d should be allowed", i)
		}
	}
	if rl.Allow("u1") {
		t.Fatal("4th message inside the window should be rejected")
	}
	if !rl.Allow("u2") {
		t.Error("limits are per sender")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("u1") {
		t.Error("window should have slid")
	}
}

func TestChatRateLimiter_Forget(t *testing.T) {
	rl := NewChatRateLimiter(1, time.Hour)
	rl.Allow("u1")
	if rl.Allow("u1") {
		t.Fatal("expected rejection")
	}
	rl.Forget("u1")
	if !rl.Allow("u1") {
		t.Error("forget should reset the sender")
	}
}
