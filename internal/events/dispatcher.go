package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const handlerTimeout = 30 * time.Second

type subscription struct {
	name    string
	types   map[string]struct{}
	handler Handler
}

func (s subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Dispatcher is a buffered in-process queue drained by a single worker.
// Publish never blocks; when the queue is full the event is dropped and logged.
type Dispatcher struct {
	queue  chan Event
	logger *zap.Logger

	mu     sync.RWMutex
	subs   []subscription
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(size int, log *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		queue:  make(chan Event, size),
		logger: log,
	}
}

// Subscribe registers h for the given event types, or for every event when none are given.
func (d *Dispatcher) Subscribe(name string, h Handler, types ...string) {
	sub := subscription{name: name, handler: h, types: map[string]struct{}{}}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}
	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()
}

func (d *Dispatcher) Publish(_ context.Context, ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("event queue full, dropping event",
			zap.String("event_type", ev.Type),
			zap.String("event_id", ev.ID),
		)
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range d.queue {
			d.dispatch(ev)
		}
	}()
}

// Close stops accepting events and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ev Event) {
	d.mu.RLock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, sub := range subs {
		if !sub.wants(ev.Type) {
			continue
		}
		if err := d.call(sub, ev); err != nil {
			d.logger.Error("event handler failed",
				zap.String("handler", sub.name),
				zap.String("event_type", ev.Type),
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) call(sub subscription, ev Event) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return sub.handler(ctx, ev)
}
