// Package events provides the lifecycle event bus for the control
// plane. Components emit typed events; registered handlers receive
// them asynchronously so emitters are never blocked by slow observers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelctl/internal/performance"
)

// Type identifies a lifecycle event.
type Type string

const (
	JobStarted      Type = "job_started"
	JobCompleted    Type = "job_completed"
	JobFailed       Type = "job_failed"
	ModelDeployed   Type = "model_deployed"
	ModelRolledBack Type = "model_rolled_back"
	ABTestStarted   Type = "ab_test_started"
	ABTestCompleted Type = "ab_test_completed"
	AlertTriggered  Type = "alert_triggered"
)

// Event is one lifecycle occurrence. Version, JobID, RolloutID and
// AlertID are set when relevant to the event type.
type Event struct {
	Type      Type
	Timestamp time.Time
	Version   string
	JobID     string
	RolloutID string
	AlertID   string
	Message   string
}

// Handler receives dispatched events.
type Handler func(Event)

// Bus fans events out to registered handlers through a worker pool.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
	pool     *performance.WorkerPool
	logger   zerolog.Logger
}

// NewBus creates and starts an event bus.
func NewBus(logger zerolog.Logger) *Bus {
	pool := performance.NewWorkerPool(2)
	pool.Start()
	return &Bus{
		handlers: make(map[Type][]Handler),
		pool:     pool,
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Emit dispatches an event to all matching handlers. Dispatch is
// asynchronous; a full queue drops the event with a warning rather
// than blocking the emitter.
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
	targets = append(targets, b.handlers[e.Type]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, h := range targets {
		handler := h
		ok := b.pool.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error().Interface("panic", r).Str("event", string(e.Type)).Msg("Event handler panicked")
				}
			}()
			handler(e)
		})
		if !ok {
			b.logger.Warn().Str("event", string(e.Type)).Msg("Event dropped: dispatch queue full")
		}
	}

	b.logger.Debug().Str("event", string(e.Type)).Str("version", e.Version).Msg(e.Message)
}

// Close stops the dispatch pool, waiting for queued handlers.
func (b *Bus) Close() {
	b.pool.Stop()
}
