package persist

import (
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
)

// DefaultDelay is the debounce window between the last change and the write.
const DefaultDelay = 200 * time.Millisecond

// Writer saves a snapshot of the history after changes settle. Every
// trigger restarts the window, so a burst of changes produces one write.
// Triggers are ignored until MarkLoaded, so an empty log never overwrites
// history that has not been read yet.
type Writer struct {
	adapter  *Adapter
	bus      *bus.Bus
	snapshot func() []chat.Message
	delay    time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	loaded  bool
	stopped bool
	unsub   func()
	done    chan struct{}
}

// NewWriter creates a writer that saves snapshot() through a. A delay <= 0
// uses DefaultDelay.
func NewWriter(a *Adapter, b *bus.Bus, snapshot func() []chat.Message, delay time.Duration, logger *zap.Logger) *Writer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		adapter:  a,
		bus:      b,
		snapshot: snapshot,
		delay:    delay,
		logger:   logger,
	}
}

// Start subscribes to history changes on the bus.
func (w *Writer) Start() {
	w.mu.Lock()
	if w.unsub != nil || w.stopped {
		w.mu.Unlock()
		return
	}
	ch, unsub := w.bus.Subscribe(bus.KindMessagesChanged, 64)
	w.unsub = unsub
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		for {
			select {
			case <-ch:
				w.Trigger()
			case <-done:
				return
			}
		}
	}()
}

// MarkLoaded enables writes. Call it once the stored history has been read.
func (w *Writer) MarkLoaded() {
	w.mu.Lock()
	w.loaded = true
	w.mu.Unlock()
}

// Trigger schedules a write, restarting any pending window.
func (w *Writer) Trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded || w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = true
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.delay, func() { w.fire(gen) })
}

// Flush cancels any pending window and writes the current snapshot now.
// It does nothing before MarkLoaded or after Stop.
func (w *Writer) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
	w.pending = false
	ok := w.loaded && !w.stopped
	w.mu.Unlock()

	if ok {
		w.adapter.Save(w.snapshot())
	}
}

// Stop unsubscribes and cancels any pending write without saving it.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = false
	if w.unsub != nil {
		w.unsub()
		close(w.done)
	}
}

// fire saves unless a later trigger, flush or stop superseded gen.
func (w *Writer) fire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || !w.pending || w.stopped {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.timer = nil
	w.mu.Unlock()

	w.adapter.Save(w.snapshot())
}
