package session

import "time"

// Timer is a cancellable one-shot timer. It is an alias so clocks in other
// packages can satisfy Clock without importing this one.
type Timer = interface {
	Stop() bool
}

// Clock supplies wall-clock time and one-shot timers to a session.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns the system clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
