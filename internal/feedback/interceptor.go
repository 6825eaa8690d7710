package feedback

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrOutboundClosed is returned when the coordinator's input no longer
// accepts messages. In a correctly shut down system this never happens while
// a script is running, so callers treat it as fatal.
var ErrOutboundClosed = errors.New("coordinator feedback channel closed")

// Interceptor sits between the dataflow engine and the coordinator.
//
// The engine is wired to Inbound and the coordinator to Outbound; nothing the
// engine sends reaches the coordinator until the driver releases it.
//
// Thread-safety: the engine may Send on Inbound from its own goroutine. All
// other methods belong to the single driver goroutine.
type Interceptor struct {
	inbound  *Direct
	outbound *Direct
	pending  PendingQueue
	logger   *slog.Logger
}

// NewInterceptor creates an interceptor with fresh inbound and outbound
// channels.
func NewInterceptor(logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{
		inbound:  NewDirect(),
		outbound: NewDirect(),
		logger:   logger,
	}
}

// Inbound is where the dataflow engine sends its feedback.
func (i *Interceptor) Inbound() Sender {
	return i.inbound
}

// Outbound is the coordinator's feedback input.
func (i *Interceptor) Outbound() Receiver {
	return i.outbound
}

// Arrivals signals that the engine may have sent something since the last
// Drain. It is closed once the interceptor is closed.
func (i *Interceptor) Arrivals() <-chan struct{} {
	return i.inbound.Wait()
}

// Drain moves every message currently available on the inbound channel into
// the pending queue, in arrival order. It never blocks. Returns the number of
// messages drained.
func (i *Interceptor) Drain() int {
	msgs := i.inbound.TryReceiveAll()
	i.pending.Push(msgs...)
	return len(msgs)
}

// Deliver sends msgs to the coordinator in order.
func (i *Interceptor) Deliver(msgs []Message) error {
	for _, m := range msgs {
		if err := i.outbound.Send(m); err != nil {
			return fmt.Errorf("%w: delivering %s: %v", ErrOutboundClosed, m.Kind, err)
		}
	}
	if len(msgs) > 0 {
		i.logger.Debug("feedback delivered", "count", len(msgs), "pending", i.pending.Len())
	}
	return nil
}

// Inject sends msg straight to the coordinator, bypassing the pending queue.
// Used for progress that originates outside the engine.
func (i *Interceptor) Inject(msg Message) error {
	return i.Deliver([]Message{msg})
}

// ReleaseExcluding drains, then delivers everything except the frontier
// entries of excluded objects, which stay pending for a later cycle.
func (i *Interceptor) ReleaseExcluding(excluded ObjectSet) error {
	i.Drain()
	return i.Deliver(i.pending.PartitionExcluding(excluded))
}

// ReleaseOnlyPeekResponses drains, then delivers only peek responses.
// Frontier progress stays pending so it cannot race ahead while a result is
// being resolved.
func (i *Interceptor) ReleaseOnlyPeekResponses() error {
	i.Drain()
	return i.Deliver(i.pending.PartitionPeekResponses())
}

// Pending returns a copy of the buffered messages.
func (i *Interceptor) Pending() []Message {
	return i.pending.Messages()
}

// Close closes both channels. Buffered messages are discarded.
func (i *Interceptor) Close() {
	i.inbound.Close()
	i.outbound.Close()
}
