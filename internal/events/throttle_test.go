package events

import (
	"testing"
	"time"
)

func TestThrottleForwardsChangesOnly(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottleWithNow(750*time.Millisecond, func() time.Time { return now })

	var forwarded []int
	for _, p := range []int{1, 1, 2, 2, 2, 3, 100} {
		if th.Allow("job", "download", p) {
			forwarded = append(forwarded, p)
		}
	}

	want := []int{1, 2, 3, 100}
	if len(forwarded) != len(want) {
		t.Fatalf("expected %v, got %v", want, forwarded)
	}
	for i := range want {
		if forwarded[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, forwarded)
		}
	}
}

func TestThrottleIntervalElapsed(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottleWithNow(750*time.Millisecond, func() time.Time { return now })

	if !th.Allow("job", "download", 0) {
		t.Fatal("first update must pass")
	}
	if th.Allow("job", "download", 0) {
		t.Fatal("unchanged update within interval must be dropped")
	}

	now = now.Add(750 * time.Millisecond)
	if !th.Allow("job", "download", 0) {
		t.Fatal("update after interval must pass")
	}
}

func TestThrottleFinalAlwaysForwarded(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottleWithNow(time.Hour, func() time.Time { return now })

	th.Allow("job", "upload", 100)
	if !th.Allow("job", "upload", 100) {
		t.Fatal("100 must always pass")
	}
}

func TestThrottlePhasesAndForget(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottleWithNow(time.Hour, func() time.Time { return now })

	th.Allow("job", "download", 5)
	if !th.Allow("job", "upload", 5) {
		t.Fatal("phases are tracked separately")
	}

	th.Forget("job")
	if !th.Allow("job", "download", 5) {
		t.Fatal("forgotten job starts fresh")
	}
}
