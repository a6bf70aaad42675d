package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// alertBuffer sizes the alert lane. Outage alerts arrive at most once per
// failed request, so a small lane absorbs bursts.
const alertBuffer = 16

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds gate traffic events when the buffer is full instead
	// of holding the request. Alert events are never shed.
	DropIfFull bool
}

// Dispatcher moves gate audit events off the request path to a sink.
//
// Events travel on two lanes. Admission and rejection records use the
// buffered traffic lane, which DropIfFull may shed under load. Events with
// Alert set (counting store or directory outages) use a separate lane that
// the worker always empties first, so a backlog of traffic records can
// neither delay nor displace them.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	traffic chan Event
	alerts  chan Event
	stop    chan struct{}
	wg      sync.WaitGroup

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery worker. It returns nil when cfg is
// disabled; a nil *Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		traffic: make(chan Event, cfg.BufferSize),
		alerts:  make(chan Event, alertBuffer),
		stop:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.alerts:
			d.deliver(event)
			continue
		default:
		}

		select {
		case event := <-d.alerts:
			d.deliver(event)
		case event := <-d.traffic:
			d.deliver(event)
		case <-d.stop:
			d.flush(d.alerts)
			d.flush(d.traffic)
			return
		}
	}
}

func (d *Dispatcher) flush(lane chan Event) {
	for {
		select {
		case event := <-lane:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	d.sink.Emit(context.Background(), event)
}

// Emit queues event on its lane. A traffic event meeting a full buffer is
// dropped under DropIfFull and otherwise waits for room, ctx, or Close. An
// alert always waits; it is counted as dropped only if ctx ends first.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	lane := d.traffic
	if event.Alert {
		lane = d.alerts
	} else if d.cfg.DropIfFull {
		select {
		case lane <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case lane <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and waits until queued ones are delivered,
// alerts first.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
