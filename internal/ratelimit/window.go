// Package ratelimit implements the resend throttle applied to OTP and password
// reset emails: a minimum interval between sends plus a fixed-window cap.
// State is persisted on the user record, so every check is evaluated against
// the values read in the same compare-and-swap cycle that writes the result.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrTooManyRequests is the sentinel matched by errors.Is for every throttle rejection.
var ErrTooManyRequests = errors.New("too many requests")

// LimitedError reports a throttle rejection and how long the caller should wait.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("too many requests; retry after %s", e.RetryAfter.Round(time.Second))
}

// Unwrap lets errors.Is(err, ErrTooManyRequests) match.
func (e *LimitedError) Unwrap() error { return ErrTooManyRequests }

// Policy configures a throttle. Zero MinInterval or MaxPerWindow disables that check.
type Policy struct {
	MinInterval  time.Duration
	Window       time.Duration
	MaxPerWindow int
}

// Counter is the persisted throttle state. Zero times mean "never".
type Counter struct {
	LastSentAt  time.Time
	Count       int
	WindowStart time.Time
}

// Allow evaluates one send attempt at now. On success it returns the counter to
// persist (count incremented, last send stamped); on rejection it returns the
// input counter unchanged and a *LimitedError.
//
// Order: minimum interval, then window rollover, then the per-window cap.
func (p Policy) Allow(c Counter, now time.Time) (Counter, error) {
	if p.MinInterval > 0 && !c.LastSentAt.IsZero() {
		if elapsed := now.Sub(c.LastSentAt); elapsed < p.MinInterval {
			return c, &LimitedError{RetryAfter: p.MinInterval - elapsed}
		}
	}
	next := c
	if next.WindowStart.IsZero() || now.Sub(next.WindowStart) > p.Window {
		next.WindowStart = now
		next.Count = 0
	}
	if p.MaxPerWindow > 0 && next.Count >= p.MaxPerWindow {
		return c, &LimitedError{RetryAfter: next.WindowStart.Add(p.Window).Sub(now)}
	}
	next.Count++
	next.LastSentAt = now
	return next, nil
}

// Same reports whether c and o hold the same state. Timestamps are compared at
// millisecond precision, the coarsest any store keeps.
func (c Counter) Same(o Counter) bool {
	return c.Count == o.Count &&
		c.LastSentAt.Truncate(time.Millisecond).Equal(o.LastSentAt.Truncate(time.Millisecond)) &&
		c.WindowStart.Truncate(time.Millisecond).Equal(o.WindowStart.Truncate(time.Millisecond))
}

// UTC returns c with every timestamp converted to UTC.
func (c Counter) UTC() Counter {
	c.LastSentAt = utc(c.LastSentAt)
	c.WindowStart = utc(c.WindowStart)
	return c
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
