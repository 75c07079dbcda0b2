package utils

import (
	"log"
	"runtime/debug"
	"time"
)

// TimeNow returns the current time in UTC. All bucket arithmetic in the
// engine is done on UTC epoch milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC()
}

// AlignBucket floors ts to the bar period and returns epoch milliseconds.
func AlignBucket(ts time.Time, period time.Duration) int64 {
	ms := ts.UnixMilli()
	p := period.Milliseconds()
	return ms - ms%p
}

// ToPointer returns a pointer to the given value.
func ToPointer[T any](v T) *T {
	return &v
}

// GoSafe runs fn in a new goroutine and recovers panics so a single
// misbehaving handler cannot take the process down.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("recovered from panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}
