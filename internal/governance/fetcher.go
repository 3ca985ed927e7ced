package governance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adt-framework/adt-console/internal/metrics"
)

// DefaultTimeout bounds each slice fetch.
const DefaultTimeout = 3 * time.Second

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	// Local is consulted when the service is wholly unreachable, and for
	// phases. Nil means no project root.
	Local *LocalReader
	// Timeout bounds each slice fetch. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
	// Now overrides time.Now.
	Now func() time.Time
}

// Fetcher produces governance snapshots. It is safe for concurrent use;
// overlapping refreshes never let an older result replace a newer one.
type Fetcher struct {
	service Service
	local   *LocalReader
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time

	seq    atomic.Uint64
	mu     sync.Mutex
	latest *Snapshot
}

// NewFetcher creates a Fetcher. service may be nil, in which case every
// refresh behaves as if the service were unreachable.
func NewFetcher(service Service, opts FetcherOptions) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Fetcher{
		service: service,
		local:   opts.Local,
		timeout: timeout,
		log:     logger,
		now:     now,
	}
}

// Local returns the project reader, or nil.
func (f *Fetcher) Local() *LocalReader {
	return f.local
}

// Refresh fetches a new snapshot and returns it. The returned snapshot
// becomes Latest unless a newer refresh already finished.
func (f *Fetcher) Refresh(ctx context.Context) *Snapshot {
	start := time.Now()
	seq := f.seq.Add(1)

	snap := f.fetchRemote(ctx)
	if allUnreachable(snap) {
		if f.local != nil {
			snap = f.fetchLocal()
		} else {
			snap = &Snapshot{Source: SourceOffline, Specs: SpecSet{}}
		}
	}
	snap.Phases = f.phases()
	snap.FetchedAt = f.now()
	snap.Seq = seq

	metrics.ObserveRefresh(string(snap.Source), time.Since(start))
	f.store(snap)
	return snap
}

// Events fetches only the event log, for the notification poll. When the
// service is unreachable it reads the local log instead; with no project
// root the source is offline and err wraps ErrServiceUnreachable. Any
// other failure is returned with the source that failed.
func (f *Fetcher) Events(ctx context.Context) ([]Event, Source, error) {
	err := ErrServiceUnreachable
	if f.service != nil {
		cctx, cancel := context.WithTimeout(ctx, f.timeout)
		var events []Event
		events, err = f.service.Events(cctx)
		cancel()
		metrics.RecordFetch(string(SliceEvents), fetchResult(err))
		if err == nil {
			return events, SourceRemote, nil
		}
		if !errors.Is(err, ErrServiceUnreachable) {
			return nil, SourceRemote, err
		}
	}
	if f.local == nil {
		return nil, SourceOffline, err
	}
	events, lerr := f.local.Events()
	if lerr != nil {
		return nil, SourceLocal, lerr
	}
	return events, SourceLocal, nil
}

// Latest returns the newest completed snapshot, or nil before the first.
func (f *Fetcher) Latest() *Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

func (f *Fetcher) store(snap *Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest != nil && f.latest.Seq > snap.Seq {
		return
	}
	if f.latest == nil || f.latest.Source != snap.Source {
		f.log.Info("governance source", "source", snap.Source)
	}
	f.latest = snap
}

func (f *Fetcher) fetchRemote(ctx context.Context) *Snapshot {
	snap := &Snapshot{Source: SourceRemote, Specs: SpecSet{}}
	if f.service == nil {
		for _, slice := range remoteSlices {
			snap.degrade(slice, ErrServiceUnreachable)
		}
		return snap
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	run := func(slice Slice, fetch func(context.Context) error) {
		g.Go(func() error {
			sliceCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			err := fetch(sliceCtx)
			metrics.RecordFetch(string(slice), fetchResult(err))
			if err != nil {
				f.log.Debug("slice fetch failed", "slice", slice, "error", err)
				mu.Lock()
				snap.degrade(slice, err)
				mu.Unlock()
			}
			// Slices fail independently.
			return nil
		})
	}

	run(SliceTasks, func(ctx context.Context) error {
		tasks, err := f.service.Tasks(ctx)
		mu.Lock()
		snap.Tasks = tasks
		mu.Unlock()
		return err
	})
	run(SliceSpecs, func(ctx context.Context) error {
		specs, err := f.service.Specs(ctx)
		if specs != nil {
			mu.Lock()
			snap.Specs = specs
			mu.Unlock()
		}
		return err
	})
	run(SliceDelegations, func(ctx context.Context) error {
		delegations, err := f.service.Delegations(ctx)
		mu.Lock()
		snap.Delegations = delegations
		mu.Unlock()
		return err
	})
	run(SliceEvents, func(ctx context.Context) error {
		events, err := f.service.Events(ctx)
		mu.Lock()
		snap.Events = events
		mu.Unlock()
		return err
	})
	run(SliceRequests, func(ctx context.Context) error {
		requests, err := f.service.Requests(ctx)
		mu.Lock()
		snap.Requests = requests
		mu.Unlock()
		return err
	})
	run(SliceDTTP, func(ctx context.Context) error {
		status, err := f.service.DTTPStatus(ctx)
		mu.Lock()
		snap.DTTPStatus = status
		mu.Unlock()
		return err
	})
	_ = g.Wait()
	return snap
}

func (f *Fetcher) fetchLocal() *Snapshot {
	snap := &Snapshot{Source: SourceLocal, Specs: SpecSet{}}

	tasks, err := f.local.Tasks()
	if err != nil {
		snap.degrade(SliceTasks, err)
	}
	snap.Tasks = tasks

	specs, err := f.local.Specs()
	if err != nil {
		snap.degrade(SliceSpecs, err)
	} else if specs != nil {
		snap.Specs = specs
	}

	events, err := f.local.Events()
	if err != nil {
		snap.degrade(SliceEvents, err)
	}
	snap.Events = events

	// No local source for these.
	snap.degrade(SliceDelegations, ErrServiceUnreachable)
	snap.degrade(SliceRequests, ErrServiceUnreachable)
	snap.degrade(SliceDTTP, ErrServiceUnreachable)
	return snap
}

func (f *Fetcher) phases() []Phase {
	if f.local != nil {
		phases, err := f.local.Phases()
		if err == nil && len(phases) > 0 {
			return phases
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			f.log.Warn("read phases", "error", err)
		}
	}
	return DefaultPhases()
}

// allUnreachable reports whether every remote slice failed because the
// service could not be contacted.
func allUnreachable(snap *Snapshot) bool {
	for _, slice := range remoteSlices {
		d, ok := snap.Degraded[slice]
		if !ok || !errors.Is(d.Err, ErrServiceUnreachable) {
			return false
		}
	}
	return true
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrServiceUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}
