package util

import "time"

// Clock abstracts time.Now so code that stamps times can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// DefaultClock reads the wall clock.
type DefaultClock struct{}

func (DefaultClock) Now() time.Time {
	return time.Now()
}

// DummyClock always reports T.
type DummyClock struct {
	T time.Time
}

func (c DummyClock) Now() time.Time {
	return c.T
}
