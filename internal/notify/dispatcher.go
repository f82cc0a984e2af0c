package notify

import (
	"context"
	"sync"
	"time"

	"water_timer/internal/logger"
	"water_timer/internal/models"

	"github.com/google/uuid"
)

const (
	defaultQueueSize = 256
	sinkTimeout      = 5 * time.Second
	drainTimeout     = 2 * time.Second
)

// Sink receives every published event, one at a time.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev models.WateringEvent) error
}

// DropCounter is told about events dropped on a full queue.
type DropCounter interface {
	EventDropped()
}

// Dispatcher fans watering events out to its sinks from one goroutine.
// Publish never blocks; when the queue is full the event is dropped.
type Dispatcher struct {
	queue   chan models.WateringEvent
	log     *logger.Logger
	dropped DropCounter

	mu    sync.RWMutex
	sinks []Sink
}

func NewDispatcher(size int, log *logger.Logger, dropped DropCounter, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		queue:   make(chan models.WateringEvent, size),
		log:     log,
		dropped: dropped,
		sinks:   sinks,
	}
}

// AddSink registers s for events delivered from now on.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

// Publish enqueues ev, filling in its id and timestamp when empty.
func (d *Dispatcher) Publish(ev models.WateringEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case d.queue <- ev:
	default:
		d.log.Warnw("event_dropped", "type", ev.Type, "event_id", ev.EventID)
		if d.dropped != nil {
			d.dropped.EventDropped()
		}
	}
}

// Run delivers events until ctx is done, then drains what is already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.WateringEvent) {
	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Write(sctx, ev)
		cancel()
		if err != nil {
			d.log.Warnw("event_sink_failed", "sink", s.Name(), "type", ev.Type, "error", err)
		}
	}
}
