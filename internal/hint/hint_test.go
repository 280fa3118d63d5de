package hint

import (
	"testing"
	"time"
)

func TestValid(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	tests := []struct {
		name       string
		recordedAt time.Time
		ttl        time.Duration
		want       bool
	}{
		{"just recorded", now, ttl, true},
		{"within ttl", now.Add(-4 * time.Minute), ttl, true},
		{"exactly at ttl", now.Add(-5 * time.Minute), ttl, false},
		{"past ttl", now.Add(-6 * time.Minute), ttl, false},
		{"recorded in the future", now.Add(time.Minute), ttl, false},
		{"zero ttl", now, 0, false},
		{"negative ttl", now, -time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.recordedAt, now, tt.ttl); got != tt.want {
				t.Errorf("Valid(%v, %v, %v) = %v, want %v", tt.recordedAt, now, tt.ttl, got, tt.want)
			}
		})
	}
}
