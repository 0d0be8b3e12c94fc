package sweep

import "sync"

// windowState tracks the client's current window id and the
// per-window item stores (spec.md §3: "Item store... Per window, an
// ordered sequence of caller-owned items" and "The client tracks the
// current window id... and uses it wherever no explicit window is
// provided").
type windowState struct {
	mu      sync.Mutex
	current string
	stores  map[string]*itemStore
}

func newWindowState(initial string) *windowState {
	if initial == "" {
		initial = defaultWindow
	}
	return &windowState{
		current: initial,
		stores:  map[string]*itemStore{initial: newItemStore()},
	}
}

// storeFor returns uid's item store, creating one on first use.
func (w *windowState) storeFor(uid string) *itemStore {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.stores[uid]
	if !ok {
		s = newItemStore()
		w.stores[uid] = s
	}
	return s
}

// drop removes uid's store entirely. Per spec.md §3: "removing a
// window drops its store" — a later event referencing uid starts a
// fresh, empty store rather than resurrecting stale items.
func (w *windowState) drop(uid string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.stores, uid)
}

func (w *windowState) setCurrent(uid string) {
	if uid == "" {
		return
	}
	w.mu.Lock()
	w.current = uid
	w.mu.Unlock()
}

func (w *windowState) getCurrent() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
