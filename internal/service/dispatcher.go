package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
)

const DefaultQueueSize = 256

type stampedEvent struct {
	gen uint64
	ev  domain.Event
}

// Dispatcher moves live events from the transport read loop into the store.
// Events are stamped with the store generation on receipt and applied one at
// a time by a single goroutine, in delivery order. A full queue blocks the
// sender.
//
// Every reconnect resyncs the store. So does the first connect when a load
// had already started, since anything sent between that fetch and the
// connect was never delivered.
type Dispatcher struct {
	store  *ConversationStore
	bus    domain.EventBus
	resync func(ctx context.Context) (int, error)
	log    zerolog.Logger

	queue  chan stampedEvent
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	stopped   bool
	connected bool // seen a successful connect
}

func NewDispatcher(store *ConversationStore, bus domain.EventBus, resync func(ctx context.Context) (int, error), queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:  store,
		bus:    bus,
		resync: resync,
		log:    logger.Module("dispatch"),
		queue:  make(chan stampedEvent, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop discards queued events and waits for the apply loop and any running
// resync to return.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}

// HandleEvent implements stream.Listener.
func (d *Dispatcher) HandleEvent(ev domain.Event) {
	if status, ok := ev.(domain.ConnectionStatusEvent); ok {
		d.handleStatus(status)
		return
	}

	item := stampedEvent{gen: d.store.Generation(), ev: ev}
	select {
	case d.queue <- item:
	case <-d.ctx.Done():
	}
}

func (d *Dispatcher) handleStatus(status domain.ConnectionStatusEvent) {
	if d.bus != nil {
		d.bus.Publish(status)
	}
	if !status.Connected {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	first := !d.connected
	d.connected = true
	if d.stopped || d.resync == nil {
		return
	}

	var reason string
	switch {
	case status.Reconnected:
		reason = "reconnect"
	case first && d.store.Generation() > 0:
		reason = "first connect after load"
	default:
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.log.Info().Str("reason", reason).Msg("stream connected, resyncing")
		if _, err := d.resync(d.ctx); err != nil {
			d.log.Warn().Err(err).Str("reason", reason).Msg("resync failed")
		}
	}()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case item := <-d.queue:
			start := time.Now()
			changed := d.store.ApplyAt(item.gen, item.ev)
			d.log.Trace().
				Str("event", string(item.ev.Type())).
				Uint64("generation", item.gen).
				Bool("changed", changed).
				Dur("took", time.Since(start)).
				Msg("applied event")
			if changed && d.bus != nil {
				d.bus.Publish(item.ev)
			}
		}
	}
}
