package chat

import "time"

// Timer is the cancellable handle behind a deferred state transition.
type Timer interface {
	Stop() bool
}

// Clock abstracts timer creation so tests can fire deferred transitions
// synchronously instead of sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
