package service

import "sync"

// notifier fans out "state changed" signals to subscribers. Stores call
// notify after every state transition; consumers re-read via Snapshot.
// Callbacks run synchronously on the mutating goroutine, outside the store's
// lock, and must not block.
type notifier struct {
	mu     sync.Mutex
	subs   map[int]func()
	nextID int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]func())}
}

// subscribe registers a callback and returns its unsubscribe function.
func (n *notifier) subscribe(fn func()) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *notifier) notify() {
	n.mu.Lock()
	subs := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
