package compute

import (
	"context"
	"sync"
)

// Conn is one end of the message channel between a Client and a Worker.
type Conn interface {
	// Send delivers msg to the other end, blocking while the other end is
	// behind. It fails with ErrClosed once either end has been closed and
	// with ctx.Err() if ctx ends first.
	Send(ctx context.Context, msg Message) error
	// Recv yields messages from the other end.
	Recv() <-chan Message
	// Done is closed when the connection is closed from either end.
	Done() <-chan struct{}
	Close() error
}

// DefaultPipeBuffer is the per-direction queue length used by Pipe.
const DefaultPipeBuffer = 64

type pipe struct {
	done chan struct{}
	once sync.Once
}

type pipeEnd struct {
	p    *pipe
	send chan Message
	recv chan Message
}

// Pipe returns two connected in-process ends. Closing either end closes
// both. buffer <= 0 selects DefaultPipeBuffer.
func Pipe(buffer int) (Conn, Conn) {
	if buffer <= 0 {
		buffer = DefaultPipeBuffer
	}
	p := &pipe{done: make(chan struct{})}
	a2b := make(chan Message, buffer)
	b2a := make(chan Message, buffer)
	return &pipeEnd{p: p, send: a2b, recv: b2a}, &pipeEnd{p: p, send: b2a, recv: a2b}
}

func (e *pipeEnd) Send(ctx context.Context, msg Message) error {
	select {
	case <-e.p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case e.send <- msg:
		return nil
	case <-e.p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *pipeEnd) Recv() <-chan Message { return e.recv }

func (e *pipeEnd) Done() <-chan struct{} { return e.p.done }

func (e *pipeEnd) Close() error {
	e.p.once.Do(func() { close(e.p.done) })
	return nil
}
