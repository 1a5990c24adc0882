package worker

import (
	"testing"
	"time"

	"PulseJoin/internal/models"
)

func TestDelay(t *testing.T) {
	lowest := func(int) int { return 0 }
	highest := func(n int) int { return n - 1 }

	tests := []struct {
		name string
		s    models.Strategy
		pick func(int) int
		want time.Duration
	}{
		{"fixed", models.Strategy{DelayMode: models.DelayFixed, Delay: 1500 * time.Millisecond}, lowest, 1500 * time.Millisecond},
		{"default mode is fixed", models.Strategy{Delay: time.Second}, lowest, time.Second},
		{"negative fixed", models.Strategy{Delay: -time.Second}, lowest, 0},
		{"random low", models.Strategy{DelayMode: models.DelayRandom, DelayMinSeconds: 3, DelayMaxSeconds: 7}, lowest, 3 * time.Second},
		{"random high", models.Strategy{DelayMode: models.DelayRandom, DelayMinSeconds: 3, DelayMaxSeconds: 7}, highest, 7 * time.Second},
		{"random inverted", models.Strategy{DelayMode: models.DelayRandom, DelayMinSeconds: 7, DelayMaxSeconds: 3}, lowest, 3 * time.Second},
		{"random degenerate", models.Strategy{DelayMode: models.DelayRandom, DelayMinSeconds: 4, DelayMaxSeconds: 4}, highest, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delay(tt.s, tt.pick); got != tt.want {
				t.Errorf("Delay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusHubNotify(t *testing.T) {
	hub := NewStatusHub()
	ch, unsubscribe := hub.Subscribe("c1")

	hub.Notify("c1")
	hub.Notify("c1")
	hub.Notify("other")

	select {
	case <-ch:
	default:
		t.Fatal("no wake-up delivered")
	}
	select {
	case <-ch:
		t.Fatal("wake-ups were not coalesced")
	default:
	}

	unsubscribe()
	hub.Notify("c1")
	if len(hub.subs) != 0 {
		t.Errorf("subscriptions leaked: %v", hub.subs)
	}
}
