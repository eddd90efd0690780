// Package event is the in-process ledger event bus. Services publish facts
// after their transaction commits; subscribers such as the commission engine
// and the Kafka forwarder react to them off the request path.
package event

import (
	"context"
	"fmt"
	"sync"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// Bus implements ports.EventBus. Each published event is dispatched on its own
// goroutine; handlers of one event run in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]ports.EventHandler
	wg       sync.WaitGroup
	closed   bool
	log      zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{handlers: make(map[string][]ports.EventHandler), log: log}
}

// Subscribe registers handler for eventName. Use "*" to receive every event.
func (b *Bus) Subscribe(eventName string, handler ports.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches evt asynchronously. The handlers get a context that
// survives the caller's cancellation. Events published after Close are dropped.
func (b *Bus) Publish(ctx context.Context, evt domain.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.log.Warn().Str("event", evt.EventName()).Msg("event bus closed, event dropped")
		return
	}
	hs := make([]ports.EventHandler, 0, len(b.handlers[evt.EventName()])+len(b.handlers["*"]))
	hs = append(hs, b.handlers[evt.EventName()]...)
	hs = append(hs, b.handlers["*"]...)
	if len(hs) == 0 {
		b.mu.RUnlock()
		return
	}
	b.wg.Add(1)
	b.mu.RUnlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer b.wg.Done()
		for _, h := range hs {
			b.dispatch(bg, h, evt)
		}
	}()
}

func (b *Bus) dispatch(ctx context.Context, h ports.EventHandler, evt domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event", evt.EventName()).
				Str("panic", fmt.Sprint(r)).
				Msg("event handler panicked")
		}
	}()
	if err := h(ctx, evt); err != nil {
		b.log.Error().Err(err).
			Str("event", evt.EventName()).
			Str("key", evt.PartitionKey()).
			Msg("event handler failed")
	}
}

// Wait blocks until every dispatched event has been handled.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Close stops accepting events and waits for in-flight handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
