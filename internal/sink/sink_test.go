package sink

import (
	"context"
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		sig  Signal
		size int64
		want Progress
		pct  int
	}{
		{"byte pair", BytePair{Sent: 50, Total: 200}, 100, Progress{50, 200}, 25},
		{"byte pair without total", BytePair{Sent: 50}, 100, Progress{50, 100}, 50},
		{"fraction", Fraction(0.5), 1000, Progress{500, 1000}, 50},
		{"absolute", Absolute(750), 1000, Progress{750, 1000}, 75},
		{"loaded", Loaded{Loaded: 10, Total: 40}, 0, Progress{10, 40}, 25},
		{"complete capped", BytePair{Sent: 100, Total: 100}, 100, Progress{100, 100}, 99},
		{"unknown total", Absolute(10), 0, Progress{10, 0}, -1},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Normalize(c.sig, c.size)
			if got != c.want {
				t.Fatalf("expected %+v, got %+v", c.want, got)
			}
			if got.Percent() != c.pct {
				t.Fatalf("expected %d%%, got %d%%", c.pct, got.Percent())
			}
		})
	}
}

func TestFromNumber(t *testing.T) {
	if _, ok := FromNumber(0.3).(Fraction); !ok {
		t.Fatal("0.3 should be a fraction")
	}
	if _, ok := FromNumber(1).(Fraction); !ok {
		t.Fatal("1 should be a fraction")
	}
	if a, ok := FromNumber(4096).(Absolute); !ok || a != 4096 {
		t.Fatal("4096 should be absolute bytes")
	}
}

func TestNoneNeverReady(t *testing.T) {
	var s Sink = None{}
	if s.Ready() {
		t.Fatal("none sink must not be ready")
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
