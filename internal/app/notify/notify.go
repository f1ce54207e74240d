// Package notify fans out coalesced change signals to watchers.
package notify

import "sync"

type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

func New() *Notifier {
	return &Notifier{subs: make(map[int]chan struct{})}
}

// Watch registers a watcher. The returned channel holds at most one pending
// signal; the func unregisters it.
func (n *Notifier) Watch() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
