// Package clock abstracts time so that poll timers and reconnect backoff can
// be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package used by the realtime client.
type Clock interface {
	Now() time.Time
	// After delivers the current time once d has elapsed. d <= 0 fires at once.
	After(d time.Duration) <-chan time.Time
	// AfterFunc calls f once d has elapsed unless the returned Timer is
	// stopped first.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop reports whether the call was prevented.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
