package epoch

import (
	"fmt"
	"time"
)

// MaxDuration bounds the epoch length (30 days).
const MaxDuration = 2_592_000 * time.Second

// Window gates how often profits may be converted. The first conversion is
// always allowed; afterwards a full Duration must elapse since Start.
type Window struct {
	Duration       time.Duration `json:"duration"`
	Start          time.Time     `json:"start"`
	Number         uint64        `json:"number"`
	LastConversion time.Time     `json:"lastConversion"`
}

// NewWindow returns a window that has not converted yet.
func NewWindow(duration time.Duration) Window {
	return Window{Duration: duration}
}

// Validate ensures the duration lies within (0, MaxDuration].
func (w Window) Validate() error {
	if w.Duration <= 0 {
		return fmt.Errorf("epoch duration must be greater than zero")
	}
	if w.Duration > MaxDuration {
		return fmt.Errorf("epoch duration %s exceeds maximum %s", w.Duration, MaxDuration)
	}
	return nil
}

// Started reports whether at least one conversion happened.
func (w Window) Started() bool {
	return w.Number > 0
}

// End returns the earliest instant of the next conversion.
func (w Window) End() time.Time {
	return w.Start.Add(w.Duration)
}

// Due reports whether a conversion may run at now.
func (w Window) Due(now time.Time) bool {
	if !w.Started() {
		return true
	}
	return !now.Before(w.End())
}

// Remaining returns the time left until the window is due.
func (w Window) Remaining(now time.Time) time.Duration {
	if w.Due(now) {
		return 0
	}
	return w.End().Sub(now)
}

// Advance opens the next epoch at now.
func (w *Window) Advance(now time.Time) {
	w.Start = now
	w.LastConversion = now
	w.Number++
}
