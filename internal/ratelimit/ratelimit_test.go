package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllow_Unlimited(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("chat", "get_current_weather"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestAllow_NilLimiter(t *testing.T) {
	var l *Limiter
	if err := l.Allow("chat", "x"); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
	l.Reset()
}

func TestAllow_BurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(Config{CallsPerMinute: 60, Burst: 2})
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := l.Allow("chat", "weather"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := l.Allow("chat", "weather"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third call: got %v, want ErrRateLimited", err)
	}

	now = now.Add(time.Second)
	if err := l.Allow("chat", "weather"); err != nil {
		t.Fatalf("after refill: %v", err)
	}
}

func TestAllow_QuotasAreIndependent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(Config{CallsPerMinute: 1})
	l.now = func() time.Time { return now }

	if err := l.Allow("chat", "weather"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	tests := []struct {
		name   string
		caller string
		tool   string
		want   error
	}{
		{"same caller and tool", "chat", "weather", ErrRateLimited},
		{"other tool", "chat", "services", nil},
		{"other caller", "mcp", "weather", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Allow(tt.caller, tt.tool); !errors.Is(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(Config{CallsPerMinute: 1})
	l.now = func() time.Time { return now }

	if err := l.Allow("mcp", "k"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := l.Allow("mcp", "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second call: got %v, want ErrRateLimited", err)
	}
	l.Reset()
	if err := l.Allow("mcp", "k"); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}
