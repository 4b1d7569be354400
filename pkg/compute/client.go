package compute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glimt/glimt/pkg/logging"
)

// DefaultTimeout bounds how long an embed request waits for its response.
const DefaultTimeout = 30 * time.Second

// Client issues embed requests to a worker over a Conn and matches the
// responses back to their callers. It is safe for concurrent use.
type Client struct {
	conn    Conn
	timeout time.Duration
	logger  logging.Logger
	newID   func() string

	mu      sync.Mutex
	pending map[string]*pendingRequest
	closed  bool

	status *statusBroadcaster
	done   chan struct{}
}

type pendingRequest struct {
	reply chan reply
	timer *time.Timer
	// abort unblocks a Send still waiting on a full connection.
	abort context.CancelFunc
}

type reply struct {
	vector []float32
	err    error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// withIDGenerator replaces uuid request ids, for tests.
func withIDGenerator(fn func() string) ClientOption {
	return func(c *Client) {
		c.newID = fn
	}
}

// NewClient starts dispatching responses arriving on conn.
func NewClient(conn Conn, opts ...ClientOption) *Client {
	c := &Client{
		conn:    conn,
		timeout: DefaultTimeout,
		logger:  logging.Nop(),
		newID:   uuid.NewString,
		pending: make(map[string]*pendingRequest),
		status:  newStatusBroadcaster(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "compute-client")

	go c.dispatch()
	return c
}

// Embed asks the worker for the vector of text and waits for the matching
// response, the client timeout, or ctx, whichever comes first. The deadline
// covers the send as well: a caller is never held past it by a worker that
// has stopped reading.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	id := c.newID()
	sendCtx, abort := context.WithCancel(ctx)
	defer abort()
	p := &pendingRequest{reply: make(chan reply, 1), abort: abort}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = p
	timeout := c.timeout
	p.timer = time.AfterFunc(timeout, func() {
		if c.settle(id, reply{err: &TimeoutError{ID: id, After: timeout}}) {
			c.logger.Warn("embed request timed out", "id", id, "after", timeout)
		}
	})
	c.mu.Unlock()

	if err := c.conn.Send(sendCtx, Message{Type: TypeEmbed, ID: id, Text: text}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else {
			err = fmt.Errorf("send embed request: %w", err)
		}
		// no-op when the timeout or Close already settled id
		c.settle(id, reply{err: err})
	}

	select {
	case r := <-p.reply:
		return r.vector, r.err
	case <-ctx.Done():
		c.settle(id, reply{err: ctx.Err()})
		r := <-p.reply
		return r.vector, r.err
	}
}

// Preload asks the worker to switch to modelID. Requests already in flight
// are unaffected whether the switch succeeds or fails.
func (c *Client) Preload(ctx context.Context, modelID string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.status.set(Status{State: StateLoading, Model: modelID})
	if err := c.conn.Send(ctx, Message{Type: TypeLoad, ModelID: modelID}); err != nil {
		return fmt.Errorf("send load request: %w", err)
	}
	return nil
}

// Status returns the latest model lifecycle status.
func (c *Client) Status() Status {
	return c.status.get()
}

// Subscribe returns a channel that yields the current status and every
// later change. Call the returned function to unsubscribe.
func (c *Client) Subscribe() (<-chan Status, func()) {
	return c.status.subscribe()
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails every pending request with ErrClosed and closes the
// connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.failAll(ErrClosed)
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) dispatch() {
	defer close(c.done)
	for {
		select {
		case msg := <-c.conn.Recv():
			c.handle(msg)
		case <-c.conn.Done():
			c.failAll(ErrWorkerGone)
			return
		}
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Type {
	case TypeResult:
		if !c.settle(msg.ID, reply{vector: msg.Vector}) {
			c.logger.Debug("ignoring result for unknown request", "id", msg.ID)
		}
	case TypeError:
		if msg.ID == "" {
			c.logger.Error("worker reported a fatal error", "message", msg.Message)
			c.failAll(&WorkerError{Message: msg.Message, Broadcast: true})
			return
		}
		c.settle(msg.ID, reply{err: &WorkerError{ID: msg.ID, Message: msg.Message}})
	case TypeProgress:
		c.status.set(Status{State: StateLoading, Model: msg.Model, Progress: msg.Progress})
	case TypeReady:
		c.status.set(Status{State: StateReady, Model: msg.Model, Progress: 100})
	case TypeLoadError:
		// Model switch failures stay out of the request path.
		c.logger.Warn("model load failed", "model", msg.Model, "message", msg.Message)
		c.status.set(Status{State: StateError, Model: msg.Model, Err: msg.Message})
	default:
		c.logger.Debug("ignoring unexpected message", "type", msg.Type)
	}
}

// settle completes request id with r. It reports false when id is not
// pending, which covers late responses after a timeout.
func (c *Client) settle(id string, r reply) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.timer.Stop()
	p.abort()
	p.reply <- r
	return true
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	drained := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range drained {
		p.timer.Stop()
		p.abort()
		p.reply <- reply{err: err}
	}
}
