package correlator

import "time"

// Timer is the deadline of a pending exchange.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// TimerFactory starts a Timer firing after d.
type TimerFactory func(d time.Duration) Timer

type stdTimer struct {
	t *time.Timer
}

func (s stdTimer) C() <-chan time.Time {
	return s.t.C
}

func (s stdTimer) Stop() bool {
	return s.t.Stop()
}

// NewTimer is the default TimerFactory.
func NewTimer(d time.Duration) Timer {
	return stdTimer{time.NewTimer(d)}
}
