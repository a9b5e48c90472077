package worker

import (
	"context"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/broker"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/dispatch"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/util"
)

// DispatchWorker consumes OrderFinalized events and hands them to the
// artifact dispatcher. It runs outside every finalize transaction.
type DispatchWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewDispatchWorker creates a new dispatch worker
func NewDispatchWorker(consumer *broker.Consumer, dispatcher *dispatch.Dispatcher) *DispatchWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderFinalized(dispatcher.HandleOrderFinalized)

	return &DispatchWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *DispatchWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting dispatch worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DispatchWorker) Stop() error {
	util.GetLogger().Info("Stopping dispatch worker")
	return w.consumer.Close()
}
