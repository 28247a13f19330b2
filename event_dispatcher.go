package authclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// eventDrainTimeout bounds how long Close keeps delivering queued events.
const eventDrainTimeout = 2 * time.Second

// eventDispatcher moves events off the auth paths onto one delivery goroutine. A nil
// dispatcher is a valid no-op.
type eventDispatcher struct {
	sink         EventSink
	queue        chan Event
	dropIfFull   bool
	drainTimeout time.Duration

	// deliverCtx is handed to the sink and cancelled once the drain budget is spent.
	deliverCtx    context.Context
	cancelDeliver context.CancelFunc

	stop      chan struct{}
	stopped   chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// newEventDispatcher returns nil when events are disabled or no sink was given.
func newEventDispatcher(cfg EventsConfig, sink EventSink) *eventDispatcher {
	if !cfg.Enabled || sink == nil {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &eventDispatcher{
		sink:          sink,
		queue:         make(chan Event, size),
		dropIfFull:    cfg.DropIfFull,
		drainTimeout:  eventDrainTimeout,
		deliverCtx:    ctx,
		cancelDeliver: cancel,
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *eventDispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver hands ev to the sink unless delivery was cancelled, in which case it counts as dropped.
func (d *eventDispatcher) deliver(ev Event) {
	if d.deliverCtx.Err() != nil {
		d.dropped.Add(1)
		return
	}
	d.sink.Emit(d.deliverCtx, ev)
}

// Emit stamps and queues ev. With dropIfFull it never blocks; otherwise it waits for room
// until ctx is done. Every event that is not queued is counted as dropped.
func (d *eventDispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-d.stop:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops intake and delivers what is queued. After the drain timeout the sink's context
// is cancelled and the remainder is dropped; Close then waits for the in-flight Emit to return.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)

		timer := time.NewTimer(d.drainTimeout)
		defer timer.Stop()
		select {
		case <-d.stopped:
		case <-timer.C:
			d.cancelDeliver()
			<-d.stopped
		}
		d.cancelDeliver()
	})
}

func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
