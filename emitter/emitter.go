// Package emitter is the process wide channel used to report permission
// errors raised by real-time bindings. Delivery is synchronous: each event is
// handed to the listeners attached at the time of Emit and dropped when there
// are none.
package emitter

import (
	"fmt"
	"sync"
	"time"

	"github.com/infinityplans/portal/docstore"
)

// PermissionError describes an access the document store rejected.
type PermissionError struct {
	Path      string      `json:"path"`
	Operation docstore.Op `json:"operation"`
	Err       error       `json:"-"`
	Time      time.Time   `json:"time"`
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("permission denied: %s on %s", e.Operation, e.Path)
	}
	return fmt.Sprintf("%s on %s: %v", e.Operation, e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Listener handles emitted errors. It runs on the goroutine calling Emit.
type Listener func(*PermissionError)

// Emitter fans out permission errors to its listeners.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// New returns an emitter without listeners.
func New() *Emitter {
	return &Emitter{listeners: make(map[int]Listener)}
}

var (
	defaultEmitter *Emitter
	defaultOnce    sync.Once
)

// Default returns the process wide emitter.
func Default() *Emitter {
	defaultOnce.Do(func() {
		defaultEmitter = New()
	})
	return defaultEmitter
}

// On attaches a listener and returns the function that detaches it.
func (e *Emitter) On(fn Listener) (off func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Emit delivers the error to every attached listener.
func (e *Emitter) Emit(perr *PermissionError) {
	if perr.Time.IsZero() {
		perr.Time = time.Now()
	}
	e.mu.RLock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(perr)
	}
}

// Listeners returns the number of attached listeners.
func (e *Emitter) Listeners() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
