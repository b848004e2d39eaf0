package adminhttp

import (
	"testing"
	"time"
)

func TestBGSaveLimiterRefillsAfterWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewBGSaveLimiter(10*time.Second, 1, func() time.Time { return now })

	if !l.Allow() {
		t.Fatal("first trigger should be allowed")
	}
	if l.Allow() {
		t.Fatal("second trigger within the window should be denied")
	}
	now = now.Add(11 * time.Second)
	if !l.Allow() {
		t.Fatal("trigger after the window should be allowed again")
	}
}

func TestBGSaveLimiterDisabledAllowsEverything(t *testing.T) {
	l := NewBGSaveLimiter(0, 0, nil)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatal("disabled limiter must always allow")
		}
	}
	var unset *BGSaveLimiter
	if !unset.Allow() {
		t.Fatal("nil limiter must always allow")
	}
}
