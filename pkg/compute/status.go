package compute

import "sync"

// State is the model lifecycle as seen by the requester.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Status is a snapshot of the model lifecycle.
type Status struct {
	State    State   `json:"state"`
	Model    string  `json:"model,omitempty"`
	Progress float64 `json:"progress"` // percent, 0-100
	Err      string  `json:"error,omitempty"`
}

// statusBroadcaster holds the latest Status and fans it out. Slow
// subscribers only ever see the most recent value.
type statusBroadcaster struct {
	mu      sync.Mutex
	current Status
	next    int
	subs    map[int]chan Status
}

func newStatusBroadcaster() *statusBroadcaster {
	return &statusBroadcaster{
		current: Status{State: StateIdle},
		subs:    make(map[int]chan Status),
	}
}

func (b *statusBroadcaster) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *statusBroadcaster) set(st Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = st
	for _, ch := range b.subs {
		select {
		case ch <- st:
		default:
			// replace the stale value
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func (b *statusBroadcaster) subscribe() (<-chan Status, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Status, 1)
	ch <- b.current
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}
