package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/notifyhub/changewatch/internal/ratelimiter"
)

func TestHostOf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Example.com/page", "example.com"},
		{"http://example.com:8080/x", "example.com"},
		{"not a url", "not a url"},
	}
	for _, tc := range tests {
		if got := ratelimiter.HostOf(tc.in); got != tc.want {
			t.Errorf("HostOf(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLimitersArePerHost(t *testing.T) {
	hl := ratelimiter.New(1)
	ctx := context.Background()

	// The first token for each host is available immediately.
	start := time.Now()
	for _, u := range []string{"https://a.example/1", "https://b.example/1"} {
		if err := hl.Wait(ctx, u); err != nil {
			t.Fatalf("wait %s: %v", u, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("distinct hosts should not share a limiter, waited %v", elapsed)
	}
	_ = hl.Wait(ctx, "https://A.EXAMPLE/2")
	if hl.Len() != 2 {
		t.Fatalf("want 2 limiters, got %d", hl.Len())
	}
}

func TestWaitHonoursContext(t *testing.T) {
	hl := ratelimiter.New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := hl.Wait(ctx, "https://slow.example"); err != nil {
		t.Fatalf("first token: %v", err)
	}
	if err := hl.Wait(ctx, "https://slow.example"); err == nil {
		t.Fatal("expected context error while waiting for second token")
	}
}
