// Package netmon is the single source of truth for connectivity. State is
// pushed by platform events (or the built-in HTTP probe) and read
// synchronously; nothing ever blocks on this package.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// State is the discrete connectivity state.
type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

// Monitor tracks connectivity and notifies subscribers on transitions.
type Monitor struct {
	online atomic.Bool

	mu     sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// New creates a monitor with the given initial state.
func New(initial State) *Monitor {
	m := &Monitor{subs: make(map[int]func(State))}
	m.online.Store(initial == Online)
	return m
}

// Current returns the current state.
func (m *Monitor) Current() State {
	if m.online.Load() {
		return Online
	}
	return Offline
}

// IsOnline reports whether the client believes it has connectivity.
func (m *Monitor) IsOnline() bool { return m.online.Load() }

// IsOffline is the negation of IsOnline.
func (m *Monitor) IsOffline() bool { return !m.online.Load() }

// SetState pushes a new state. Subscribers are notified synchronously, and
// only on an actual transition.
func (m *Monitor) SetState(s State) {
	changed := m.online.CompareAndSwap(s != Online, s == Online)
	if !changed {
		return
	}

	m.mu.Lock()
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Subscribe registers a transition callback and returns an unsubscribe
// function.
func (m *Monitor) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// StartProbe polls url until ctx is cancelled, feeding SetState. This is
// the platform connectivity-event source for environments without one.
func (m *Monitor) StartProbe(ctx context.Context, client *http.Client, url string, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SetState(probe(ctx, client, url))
			}
		}
	}()
}

func probe(ctx context.Context, client *http.Client, url string) State {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Offline
	}
	resp, err := client.Do(req)
	if err != nil {
		return Offline
	}
	resp.Body.Close()
	return Online
}
