package sweep

import (
	"encoding/json"
	"sync"

	"github.com/aslpavel/sweep-go/internal/view"
)

// itemIndexKey is the reserved extra field used to recover a caller's
// original item from the index embedded in the sweeper's wire JSON
// (spec.md §3). quickSelectIndexKey is its private analogue for
// ephemeral quick-select sub-views, which keep their own haystack
// separate from any window's store.
const (
	itemIndexKey        = "_sweep_item_index"
	quickSelectIndexKey = "__sweep_item_index"
)

// itemStore is the ordered, append-only (except via ItemUpdate) record
// of items extended to one window. Removing a window drops its store
// (spec.md §3's invariant).
type itemStore struct {
	mu    sync.Mutex
	items []any
}

func newItemStore() *itemStore { return &itemStore{} }

func (s *itemStore) append(item any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.items)
	s.items = append(s.items, item)
	return idx
}

func (s *itemStore) length() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *itemStore) update(index int, item any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return errIndexRange(index, len(s.items))
	}
	s.items[index] = item
	return nil
}

func (s *itemStore) get(index int) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return nil, false
	}
	return s.items[index], true
}

// stampKey converts item to its wire form, stamping key with the index
// it occupies (or will occupy) in the store. Items implementing
// view.ToCandidate are converted to their Candidate; anything else is
// sent through untouched (spec.md §9's "capability query" dispatch).
// key is itemIndexKey for window stores and quickSelectIndexKey for
// quick-select's private haystack.
func stampKey(item any, index int, key string) any {
	candidate, ok := item.(view.ToCandidate)
	if !ok {
		return item
	}
	src := candidate.ToCandidate()
	if src == nil {
		return item
	}
	clone := *src
	extra := make(map[string]any, len(src.Extra)+1)
	for k, v := range src.Extra {
		extra[k] = v
	}
	extra[key] = index
	clone.Extra = extra
	return clone
}

func stamp(item any, index int) any { return stampKey(item, index, itemIndexKey) }

// restoreKey parses raw wire JSON for one item and, if it carries key,
// looks up the original value in store; otherwise returns the decoded
// JSON verbatim (spec.md §3).
func restoreKey(store *itemStore, raw json.RawMessage, key string) any {
	var obj map[string]any
	if err := wireJSON.Unmarshal(raw, &obj); err == nil {
		if v, ok := obj[key]; ok {
			if f, ok := v.(float64); ok {
				if item, found := store.get(int(f)); found {
					return item
				}
			}
		}
		return obj
	}
	var v any
	_ = wireJSON.Unmarshal(raw, &v)
	return v
}

func restore(store *itemStore, raw json.RawMessage) any {
	return restoreKey(store, raw, itemIndexKey)
}
