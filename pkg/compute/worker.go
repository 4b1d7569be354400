package compute

import (
	"context"
	"errors"
	"fmt"

	"github.com/glimt/glimt/pkg/logging"
)

// Model computes embeddings. A Model is owned by exactly one Worker.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Close releases the model. It is called when the model is replaced,
	// superseded before it became active, or when the worker stops.
	Close() error
}

// Loader loads models by id. progress may be called any number of times
// with a completion percentage.
type Loader interface {
	Load(ctx context.Context, modelID string, progress func(percent float64)) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, modelID string, progress func(percent float64)) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, modelID string, progress func(percent float64)) (Model, error) {
	return f(ctx, modelID, progress)
}

// Worker serves load and embed messages. All model state lives inside Run;
// nothing is shared with the requester except the Conn.
type Worker struct {
	loader       Loader
	defaultModel string
	logger       logging.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithDefaultModel sets the model loaded lazily by the first embed request
// when no load was requested.
func WithDefaultModel(modelID string) WorkerOption {
	return func(w *Worker) {
		w.defaultModel = modelID
	}
}

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(l logging.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker returns a worker backed by loader.
func NewWorker(loader Loader, opts ...WorkerOption) *Worker {
	w := &Worker{loader: loader, logger: logging.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "compute-worker")
	return w
}

// Spawn starts a worker goroutine on one end of a new Pipe and returns a
// Client for the other end. Cancel ctx or Close the client to stop it.
func Spawn(ctx context.Context, w *Worker, opts ...ClientOption) *Client {
	clientEnd, workerEnd := Pipe(DefaultPipeBuffer)
	go func() {
		if err := w.Run(ctx, workerEnd); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("worker stopped", "error", err)
		}
		_ = workerEnd.Close()
	}()
	return NewClient(clientEnd, opts...)
}

// workerState is owned by the Run goroutine.
type workerState struct {
	selected   string // model most recently asked for
	activeID   string
	active     Model
	loadingID  string
	generation uint64
	cancelLoad context.CancelFunc
	queued     []Message // embeds waiting for a first model
}

type loadEvent struct {
	generation uint64
	modelID    string
	done       bool
	percent    float64
	model      Model
	err        error
}

// Run processes messages from conn until ctx is cancelled or conn closes.
func (w *Worker) Run(ctx context.Context, conn Conn) error {
	st := &workerState{selected: w.defaultModel}
	events := make(chan loadEvent)
	stop := make(chan struct{})

	defer func() {
		close(stop)
		if st.cancelLoad != nil {
			st.cancelLoad()
		}
		if st.active != nil {
			_ = st.active.Close()
		}
	}()

	r := &run{w: w, ctx: ctx, conn: conn, st: st, events: events, stop: stop}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			return nil
		case msg := <-conn.Recv():
			r.handle(msg)
		case ev := <-events:
			r.handleLoadEvent(ev)
		}
	}
}

// run bundles the per-Run values so handlers stay small.
type run struct {
	w      *Worker
	ctx    context.Context
	conn   Conn
	st     *workerState
	events chan loadEvent
	stop   chan struct{}
}

func (r *run) reply(msg Message) {
	if err := r.conn.Send(r.ctx, msg); err != nil {
		r.w.logger.Debug("dropping reply", "type", msg.Type, "id", msg.ID, "error", err)
	}
}

func (r *run) handle(msg Message) {
	switch msg.Type {
	case TypeLoad:
		r.load(msg.ModelID)
	case TypeEmbed:
		if msg.ID == "" {
			r.w.logger.Warn("ignoring embed request without id")
			return
		}
		r.embed(msg)
	default:
		if msg.ID != "" {
			r.reply(Message{Type: TypeError, ID: msg.ID, Message: fmt.Sprintf("unknown message type %q", msg.Type)})
			return
		}
		r.w.logger.Warn("ignoring unknown message", "type", msg.Type)
	}
}

func (r *run) load(modelID string) {
	st := r.st
	if modelID == "" {
		modelID = r.w.defaultModel
	}
	if modelID == "" {
		r.reply(Message{Type: TypeLoadError, Message: "no model id given and no default model configured"})
		return
	}
	st.selected = modelID

	if st.loadingID == modelID {
		return
	}
	if st.active != nil && st.activeID == modelID {
		// Asking for the active model again cancels a pending switch.
		if st.loadingID != "" {
			r.supersede()
		}
		r.reply(Message{Type: TypeReady, Model: modelID})
		return
	}
	r.startLoad(modelID)
}

// supersede invalidates the in-flight load. Its result is disposed when it
// arrives.
func (r *run) supersede() {
	st := r.st
	st.generation++
	if st.cancelLoad != nil {
		st.cancelLoad()
		st.cancelLoad = nil
	}
	st.loadingID = ""
}

func (r *run) startLoad(modelID string) {
	r.supersede()
	st := r.st

	loadCtx, cancel := context.WithCancel(r.ctx)
	st.cancelLoad = cancel
	st.loadingID = modelID
	gen := st.generation

	r.w.logger.Info("loading model", "model", modelID, "generation", gen)
	r.reply(Message{Type: TypeProgress, Model: modelID, Progress: 0})

	events, stop, loader := r.events, r.stop, r.w.loader
	go func() {
		progress := func(percent float64) {
			select {
			case events <- loadEvent{generation: gen, modelID: modelID, percent: percent}:
			case <-stop:
			}
		}
		m, err := loader.Load(loadCtx, modelID, progress)
		select {
		case events <- loadEvent{generation: gen, modelID: modelID, done: true, model: m, err: err}:
		case <-stop:
			if m != nil {
				_ = m.Close()
			}
		}
	}()
}

func (r *run) handleLoadEvent(ev loadEvent) {
	st := r.st
	if ev.generation != st.generation {
		if ev.done && ev.model != nil {
			r.w.logger.Info("discarding superseded model", "model", ev.modelID, "generation", ev.generation)
			_ = ev.model.Close()
		}
		return
	}

	if !ev.done {
		r.reply(Message{Type: TypeProgress, Model: ev.modelID, Progress: ev.percent})
		return
	}

	st.loadingID = ""
	if st.cancelLoad != nil {
		st.cancelLoad()
		st.cancelLoad = nil
	}

	if ev.err != nil || ev.model == nil {
		err := ev.err
		if err == nil {
			err = errors.New("loader returned no model")
		}
		r.w.logger.Warn("model load failed", "model", ev.modelID, "error", err)
		r.reply(Message{Type: TypeLoadError, Model: ev.modelID, Message: err.Error()})
		r.drainQueue(err)
		return
	}

	previous := st.active
	st.active = ev.model
	st.activeID = ev.modelID
	if previous != nil {
		_ = previous.Close()
	}
	r.w.logger.Info("model ready", "model", ev.modelID, "generation", ev.generation)
	r.reply(Message{Type: TypeReady, Model: ev.modelID})
	r.drainQueue(nil)
}

// drainQueue runs requests that were waiting for a model. When no model
// became available they fail one by one with loadErr.
func (r *run) drainQueue(loadErr error) {
	st := r.st
	queued := st.queued
	st.queued = nil
	for _, msg := range queued {
		if st.active == nil {
			r.reply(Message{Type: TypeError, ID: msg.ID, Message: fmt.Sprintf("model unavailable: %v", loadErr)})
			continue
		}
		r.compute(msg)
	}
}

func (r *run) embed(msg Message) {
	st := r.st
	if st.active != nil {
		r.compute(msg)
		return
	}

	st.queued = append(st.queued, msg)
	if st.loadingID != "" {
		return
	}
	if st.selected == "" {
		st.queued = st.queued[:len(st.queued)-1]
		r.reply(Message{Type: TypeError, ID: msg.ID, Message: "no model selected"})
		return
	}
	r.startLoad(st.selected)
}

func (r *run) compute(msg Message) {
	vector, err := r.safeEmbed(msg.Text)
	if err != nil {
		r.reply(Message{Type: TypeError, ID: msg.ID, Message: err.Error()})
		return
	}
	r.reply(Message{Type: TypeResult, ID: msg.ID, Vector: vector})
}

func (r *run) safeEmbed(text string) (vector []float32, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("model panicked: %v", p)
		}
	}()

	vector, err = r.st.active.Embed(r.ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, errors.New("model returned an empty vector")
	}
	out := make([]float32, len(vector))
	copy(out, vector)
	return out, nil
}
