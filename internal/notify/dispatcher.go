package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/metrics"
)

// Sink delivers alerts somewhere.
type Sink interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// AmbientSink shows the ambient status.
type AmbientSink interface {
	Name() string
	SetAmbient(a Ambient) error
}

// SinkError reports a delivery failure. Sink errors are logged and
// counted; they never reach the poll loop.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("notification sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

type route struct {
	consumer Consumer
	mark     Watermark
	sink     Sink
}

// Dispatcher routes new events to every consumer's sink.
type Dispatcher struct {
	mu      sync.Mutex // serializes Dispatch so alerts stay in log order
	routes  []*route
	ambient []AmbientSink
	last    Ambient
	log     *slog.Logger
}

// NewDispatcher creates a Dispatcher with no routes.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{log: logger, last: ComputeAmbient(nil, 0)}
}

// Route sends consumer c's alerts to sink. Each route owns a fresh
// watermark.
func (d *Dispatcher) Route(c Consumer, sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, &route{consumer: c, sink: sink})
}

// AddAmbient registers a sink for ambient status updates.
func (d *Dispatcher) AddAmbient(s AmbientSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ambient = append(d.ambient, s)
}

// Dispatch handles one poll of the event log. Every consumer advances its
// own watermark and gets one alert per new event; the ambient status is
// then recomputed and pushed. It returns the number of alerts fired per
// consumer and the new ambient status.
func (d *Dispatcher) Dispatch(ctx context.Context, events []governance.Event, sessions int) (map[Consumer]int, Ambient) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fired := make(map[Consumer]int, len(d.routes))
	for _, r := range d.routes {
		from, to, ok := r.mark.Advance(len(events))
		if !ok {
			continue
		}
		for _, ev := range events[from:to] {
			alert := NewAlert(r.consumer, ev)
			metrics.RecordAlert(string(r.consumer), string(alert.Kind))
			fired[r.consumer]++
			if err := r.sink.Notify(ctx, alert); err != nil {
				d.sinkFailed(r.sink.Name(), err)
			}
		}
	}

	d.last = ComputeAmbient(events, sessions)
	for _, s := range d.ambient {
		if err := s.SetAmbient(d.last); err != nil {
			d.sinkFailed(s.Name(), err)
		}
	}
	return fired, d.last
}

// UpdateAmbient recomputes and pushes the ambient status without touching
// watermarks, for when only the session count changed.
func (d *Dispatcher) UpdateAmbient(sessions int) Ambient {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last.Sessions = sessions
	d.last = withLevel(d.last)
	for _, s := range d.ambient {
		if err := s.SetAmbient(d.last); err != nil {
			d.sinkFailed(s.Name(), err)
		}
	}
	return d.last
}

func (d *Dispatcher) sinkFailed(name string, err error) {
	sinkErr := &SinkError{Sink: name, Err: err}
	d.log.Warn("notification delivery failed", "sink", name, "error", sinkErr)
	metrics.RecordSinkError(name)
}

// MarkOutage resets every watermark. The first poll after the service
// comes back re-seeds instead of replaying the backlog.
func (d *Dispatcher) MarkOutage() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.routes {
		r.mark.Reset()
	}
}

// Ambient returns the last computed ambient status.
func (d *Dispatcher) Ambient() Ambient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Watermark returns consumer c's cursor, for diagnostics.
func (d *Dispatcher) Watermark(c Consumer) (cursor int, seeded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.routes {
		if r.consumer == c {
			return r.mark.Value()
		}
	}
	return 0, false
}
