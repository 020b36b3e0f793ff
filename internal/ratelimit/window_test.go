package ratelimit

import (
	"errors"
	"testing"
	"time"
)

var testPolicy = Policy{MinInterval: 30 * time.Second, Window: time.Hour, MaxPerWindow: 5}

func TestAllow_FirstSendOpensWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := testPolicy.Allow(Counter{}, now)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if next.Count != 1 || !next.LastSentAt.Equal(now) || !next.WindowStart.Equal(now) {
		t.Errorf("next = %+v", next)
	}
}

func TestAllow_MinInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c, _ := testPolicy.Allow(Counter{}, now)

	_, err := testPolicy.Allow(c, now.Add(10*time.Second))
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("err = %v, want ErrTooManyRequests", err)
	}
	var le *LimitedError
	if !errors.As(err, &le) || le.RetryAfter != 20*time.Second {
		t.Errorf("RetryAfter = %v, want 20s", le)
	}

	if _, err := testPolicy.Allow(c, now.Add(30*time.Second)); err != nil {
		t.Errorf("send exactly at MinInterval should pass: %v", err)
	}
}

func TestAllow_WindowCapAndReset(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var c Counter
	var err error
	for i := 0; i < 5; i++ {
		c, err = testPolicy.Allow(c, start.Add(time.Duration(i)*31*time.Second))
		if err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}
	rejected, err := testPolicy.Allow(c, start.Add(5*31*time.Second))
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("6th send err = %v, want ErrTooManyRequests", err)
	}
	if rejected != c {
		t.Error("rejected Allow must not change the counter")
	}

	after, err := testPolicy.Allow(c, start.Add(time.Hour+time.Second))
	if err != nil {
		t.Fatalf("send after window: %v", err)
	}
	if after.Count != 1 {
		t.Errorf("Count after rollover = %d, want 1", after.Count)
	}
}

func TestAllow_ZeroPolicyAllowsEverything(t *testing.T) {
	now := time.Now()
	c := Counter{LastSentAt: now, Count: 1000, WindowStart: now}
	if _, err := (Policy{Window: time.Hour}).Allow(c, now); err != nil {
		t.Errorf("zero policy should not throttle: %v", err)
	}
}

func TestCounter_UTC(t *testing.T) {
	loc := time.FixedZone("WAT", 3600)
	c := Counter{LastSentAt: time.Date(2026, 1, 1, 13, 0, 0, 0, loc)}.UTC()
	if c.LastSentAt.Location() != time.UTC {
		t.Error("LastSentAt not UTC")
	}
	if !c.WindowStart.IsZero() {
		t.Error("zero WindowStart should stay zero")
	}
}

func TestCounter_SameIgnoresSubMillisecond(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 123456789, time.UTC)
	c := Counter{Count: 2, LastSentAt: at, WindowStart: at.Add(-time.Minute)}

	stored := Counter{Count: 2, LastSentAt: at.Truncate(time.Millisecond), WindowStart: at.Add(-time.Minute).Truncate(time.Millisecond)}
	if !c.Same(stored) {
		t.Errorf("Same(%+v) = false after millisecond round trip", stored)
	}
	if c.Same(Counter{Count: 3, LastSentAt: at, WindowStart: at.Add(-time.Minute)}) {
		t.Error("Same ignored a count change")
	}
	if c.Same(Counter{Count: 2, LastSentAt: at.Add(time.Millisecond), WindowStart: at.Add(-time.Minute)}) {
		t.Error("Same ignored a newer send")
	}
}
