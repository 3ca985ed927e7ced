package governance

import (
	"context"
	"os"
	"time"
)

// WatchedFiles are the project files whose changes warrant an early refresh.
var WatchedFiles = []string{EventsFile, TasksFile, RequestsFile, PhasesFile}

// Watch polls the watched files under the reader's root and reports which
// ones changed since the previous poll.
type Watch struct {
	local     *LocalReader
	files     []string
	seen      map[string]fileStamp
	baselined bool
}

type fileStamp struct {
	mod  time.Time
	size int64
}

// NewWatch creates a Watch and records the current state as the baseline.
func NewWatch(local *LocalReader) *Watch {
	w := &Watch{local: local, files: WatchedFiles, seen: make(map[string]fileStamp)}
	w.Poll()
	return w
}

// Poll returns the files that appeared, changed or disappeared. The first
// poll only records the baseline.
func (w *Watch) Poll() []string {
	var changed []string
	for _, rel := range w.files {
		abs, err := w.local.Resolve(rel)
		if err != nil {
			continue
		}
		prev, had := w.seen[rel]
		info, err := os.Stat(abs)
		if err != nil {
			if had {
				delete(w.seen, rel)
				changed = append(changed, rel)
			}
			continue
		}
		cur := fileStamp{mod: info.ModTime(), size: info.Size()}
		if had && cur == prev {
			continue
		}
		w.seen[rel] = cur
		if w.baselined {
			changed = append(changed, rel)
		}
	}
	w.baselined = true
	return changed
}

// Run polls every interval until ctx is done, calling onChange with each
// non-empty batch of changed files.
func (w *Watch) Run(ctx context.Context, interval time.Duration, onChange func([]string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if changed := w.Poll(); len(changed) > 0 {
				onChange(changed)
			}
		}
	}
}
