package clock

import "time"

// #region clock

// Clock supplies wall-clock time. Components read "now" through a Clock so
// tests can pin it.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// Func adapts a function to the Clock interface.
type Func func() time.Time

// Now invokes the wrapped function.
func (f Func) Now() time.Time { return f() }

// #endregion clock

// #region helpers

// NowMs returns c's current time as Unix epoch milliseconds.
func NowMs(c Clock) int64 {
	return c.Now().UnixMilli()
}

// #endregion helpers
