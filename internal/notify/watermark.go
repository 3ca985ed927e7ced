// Package notify turns new governance events into alerts. Each consumer
// keeps its own watermark over the event log, so a toast queue and desktop
// notifications fire independently and at most once per event.
package notify

import "sync"

// Watermark is a consumer's cursor over an append-only event log. It
// starts unset: the first Advance only records where the log is.
type Watermark struct {
	mu     sync.Mutex
	cursor int
	seeded bool
}

// Advance moves the cursor to n and returns the half-open range of new
// events [from, to). ok is false when nothing is new: on the seeding call,
// when n equals the cursor, or when the log reports fewer events than the
// cursor (the cursor never moves backwards).
func (w *Watermark) Advance(n int) (from, to int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.seeded {
		if n > w.cursor {
			w.cursor = n
		}
		w.seeded = true
		return 0, 0, false
	}
	if n <= w.cursor {
		return 0, 0, false
	}
	from, to = w.cursor, n
	w.cursor = n
	return from, to, true
}

// Reset returns the watermark to the unset state without moving the
// cursor back.
func (w *Watermark) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seeded = false
}

// Value returns the cursor and whether it has been seeded.
func (w *Watermark) Value() (cursor int, seeded bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor, w.seeded
}
