package feedback

import (
	"github.com/roach88/coordtest/internal/queue"
)

// Sender is the producer side of a feedback channel.
type Sender interface {
	Send(Message) error
}

// Receiver is the consumer side of a feedback channel. TryReceiveAll never
// blocks; Wait signals that messages may be available and is closed once the
// channel is closed.
type Receiver interface {
	TryReceiveAll() []Message
	Wait() <-chan struct{}
	Closed() bool
}

// Transport is a complete feedback channel.
type Transport interface {
	Sender
	Receiver
}

// Direct is the live wiring: whatever is sent is immediately receivable.
type Direct struct {
	q *queue.Unbounded[Message]
}

var _ Transport = (*Direct)(nil)

// NewDirect creates an open channel.
func NewDirect() *Direct {
	return &Direct{q: queue.New[Message]()}
}

// Send enqueues msg. It fails with queue.ErrClosed after Close.
func (d *Direct) Send(msg Message) error {
	return d.q.Push(msg)
}

// TryReceiveAll returns every message sent so far and not yet received.
func (d *Direct) TryReceiveAll() []Message {
	return d.q.TryPopAll()
}

// Wait signals availability.
func (d *Direct) Wait() <-chan struct{} {
	return d.q.Wait()
}

// Closed reports whether Close has been called.
func (d *Direct) Closed() bool {
	return d.q.Closed()
}

// Close stops accepting messages. Pending messages can still be received.
func (d *Direct) Close() {
	d.q.Close()
}
