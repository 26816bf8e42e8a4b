package local

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/hostyoself/internal/logging"
)

// Event reports a file that appeared below the watched folder.
type Event struct {
	Rel  string // path relative to the folder, OS separators
	Full string
	Info fs.FileInfo
}

// Watcher polls a folder for newly created files. The catalog only grows,
// so modified and deleted files produce no events; content is read at
// request time anyway.
type Watcher struct {
	root     string
	interval time.Duration

	mu    sync.RWMutex
	state map[string]struct{}
	subs  map[chan Event]struct{}
	done  chan struct{}
	once  sync.Once
}

// NewWatcher creates a watcher for root.
func NewWatcher(root string, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		root:     root,
		interval: interval,
		state:    make(map[string]struct{}),
		subs:     make(map[chan Event]struct{}),
		done:     make(chan struct{}),
	}
}

// Start records the current files and begins polling.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.scan(); err != nil {
		return err
	}

	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.done) })
}

// Known reports whether rel was present at the last poll.
func (w *Watcher) Known(rel string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.state[rel]
	return ok
}

// Subscribe returns a channel that receives events.
func (w *Watcher) Subscribe() chan Event {
	ch := make(chan Event, 100)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch chan Event) {
	w.mu.Lock()
	delete(w.subs, ch)
	close(ch)
	w.mu.Unlock()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.checkChanges()
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) scan() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return walk(w.root, func(rel, _ string, _ fs.FileInfo) {
		w.state[rel] = struct{}{}
	})
}

func (w *Watcher) checkChanges() {
	newState := make(map[string]struct{})
	var events []Event

	walk(w.root, func(rel, full string, info fs.FileInfo) {
		newState[rel] = struct{}{}
		if !w.Known(rel) {
			events = append(events, Event{Rel: rel, Full: full, Info: info})
		}
	})

	w.mu.Lock()
	w.state = newState
	w.mu.Unlock()

	if len(events) > 0 {
		w.broadcast(events)
	}
}

func (w *Watcher) broadcast(events []Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for ch := range w.subs {
		for _, event := range events {
			select {
			case ch <- event:
			default:
				logging.Warn("dropping event for slow subscriber",
					zap.String("path", filepath.ToSlash(event.Rel)))
			}
		}
	}
}
