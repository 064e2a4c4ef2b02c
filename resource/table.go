package resource

import (
	"sync"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
)

// Table tracks which handle owns each live foreign pointer.
type Table struct {
	owners    map[abi.Ptr]*Handle
	mu        sync.RWMutex
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates an empty ownership table.
func NewTable() *Table {
	return &Table{
		owners: make(map[abi.Ptr]*Handle),
	}
}

func (t *Table) claim(h *Handle) error {
	t.mu.Lock()
	if prev, ok := t.owners[h.ptr]; ok {
		t.mu.Unlock()
		return errors.New(errors.PhaseSession, errors.KindContract).
			Detail("%s 0x%x already owned by a live %s handle", h.kind, uint32(h.ptr), prev.kind).
			Value(h.ptr).
			Build()
	}
	t.owners[h.ptr] = h
	t.mu.Unlock()

	t.notify(Event{Type: EventClaimed, Ptr: h.ptr, Kind: h.kind})
	return nil
}

func (t *Table) drop(h *Handle, typ EventType) {
	t.mu.Lock()
	if t.owners[h.ptr] != h {
		t.mu.Unlock()
		return
	}
	delete(t.owners, h.ptr)
	t.mu.Unlock()

	t.notify(Event{Type: typ, Ptr: h.ptr, Kind: h.kind})
}

// Owner returns the handle owning ptr.
func (t *Table) Owner(ptr abi.Ptr) (*Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.owners[ptr]
	return h, ok
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.owners)
}

// Each iterates over live handles until fn returns false.
func (t *Table) Each(fn func(abi.Ptr, *Handle) bool) {
	t.mu.RLock()
	handles := make([]*Handle, 0, len(t.owners))
	for _, h := range t.owners {
		handles = append(handles, h)
	}
	t.mu.RUnlock()

	for _, h := range handles {
		if !fn(h.ptr, h) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
