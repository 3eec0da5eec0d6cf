package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/levensailor/calndr-go/internal/custody"
)

// Sink receives custody change events. Delivery errors are logged and
// dropped; a sink can never fail a custody write.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event custody.ChangeEvent) error
}

// Dispatcher fans custody change events out to sinks from a background
// worker, so the write path never waits on delivery.
type Dispatcher struct {
	logger *slog.Logger
	sinks  []Sink

	events chan custody.ChangeEvent
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewDispatcher starts the worker. Close must be called to flush
// pending events on shutdown.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{
		logger: logger,
		sinks:  sinks,
		events: make(chan custody.ChangeEvent, 256),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// CustodyChanged queues an event for delivery. When the buffer is full
// the event is dropped with a warning; custody writes never block here.
func (d *Dispatcher) CustodyChanged(ctx context.Context, event custody.ChangeEvent) {
	select {
	case d.events <- event:
	default:
		d.logger.Warn("notification buffer full, dropping event",
			"family_id", event.FamilyID,
			"date", event.Date.Format("2006-01-02"),
		)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event custody.ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			d.logger.Error("notification delivery failed",
				"sink", sink.Name(),
				"family_id", event.FamilyID,
				"date", event.Date.Format("2006-01-02"),
				"error", err,
			)
		}
	}
}

// Close stops accepting events and waits for queued ones to deliver.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.events)
	})
	d.wg.Wait()
}

// LogSink records custody changes to the application log. It is the
// default sink; push transports register alongside it.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, event custody.ChangeEvent) error {
	s.Logger.Info("custody changed",
		"family_id", event.FamilyID,
		"date", event.Date.Format("2006-01-02"),
		"custodian_id", event.CustodianID,
		"actor_id", event.ActorID,
	)
	return nil
}
