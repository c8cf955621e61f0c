// Package safego launches background goroutines that survive panics.
package safego

import "log/slog"

// Go runs fn in a new goroutine. A panic in fn is recovered and logged under
// name rather than crashing the process. All fire-and-forget goroutines
// (sweep loops, async audit writes) go through this; a bare go statement that
// panics takes the whole server down.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background goroutine panicked", "name", name, "panic", r)
			}
		}()
		fn()
	}()
}
