package emitter

import (
	"sync"

	"go.vocdoni.io/dvote/log"
)

// clientBuffer is the number of pending events kept per diagnostic client.
// Events beyond it are dropped for that client.
const clientBuffer = 16

// Diagnostics is the global listener behind the developer overlay. It logs
// every permission error and forwards it to the connected clients.
type Diagnostics struct {
	mu      sync.Mutex
	clients map[chan *PermissionError]struct{}
	recent  []*PermissionError
	keep    int
	off     func()
}

// NewDiagnostics attaches a diagnostic listener to the emitter. The last
// keep events are retained for clients that connect later.
func NewDiagnostics(e *Emitter, keep int) *Diagnostics {
	d := &Diagnostics{
		clients: make(map[chan *PermissionError]struct{}),
		keep:    keep,
	}
	d.off = e.On(d.handle)
	return d
}

func (d *Diagnostics) handle(perr *PermissionError) {
	log.Warnw("permission error", "path", perr.Path, "operation", perr.Operation, "error", perr.Err)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keep > 0 {
		d.recent = append(d.recent, perr)
		if len(d.recent) > d.keep {
			d.recent = d.recent[len(d.recent)-d.keep:]
		}
	}
	for ch := range d.clients {
		select {
		case ch <- perr:
		default:
		}
	}
}

// Recent returns the retained events, oldest first.
func (d *Diagnostics) Recent() []*PermissionError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*PermissionError(nil), d.recent...)
}

// Connect registers a client and returns its event channel along with the
// function that disconnects it.
func (d *Diagnostics) Connect() (<-chan *PermissionError, func()) {
	ch := make(chan *PermissionError, clientBuffer)
	d.mu.Lock()
	d.clients[ch] = struct{}{}
	d.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.clients, ch)
			d.mu.Unlock()
		})
	}
}

// Close detaches the listener from the emitter.
func (d *Diagnostics) Close() {
	d.off()
}
