// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

import "log/slog"

// Listener reacts to a named event dispatched against an entity. Listener
// errors are isolated: they are logged and never propagate past Run.
type Listener func(args ...any) error

// Handle identifies a registered listener for later removal.
type Handle struct {
	name string
	id   uint64
}

type listenerEntry struct {
	id      uint64
	fn      Listener
	removed bool
}

// TriggerTable maps event names to ordered listener lists. Removal by handle
// is O(1) and never disturbs a dispatch round already in progress: Run
// iterates a snapshot taken at entry, so a listener removed mid-round still
// fires that round and is skipped in all future rounds.
type TriggerTable struct {
	nextID  uint64
	lists   map[string][]*listenerEntry
	entries map[uint64]*listenerEntry
	log     *slog.Logger
}

// NewTriggerTable creates an empty trigger table. A nil logger defaults to
// slog.Default().
func NewTriggerTable(log *slog.Logger) *TriggerTable {
	if log == nil {
		log = slog.Default()
	}
	return &TriggerTable{
		lists:   make(map[string][]*listenerEntry),
		entries: make(map[uint64]*listenerEntry),
		log:     log,
	}
}

// Add registers fn for the named event, after all listeners registered
// earlier for that name. The returned handle removes exactly this
// registration.
func (t *TriggerTable) Add(name string, fn Listener) Handle {
	t.nextID++
	entry := &listenerEntry{id: t.nextID, fn: fn}
	t.lists[name] = append(t.lists[name], entry)
	t.entries[entry.id] = entry
	return Handle{name: name, id: entry.id}
}

// Remove unregisters the listener behind h. Removing an unknown or already
// removed handle is a no-op.
func (t *TriggerTable) Remove(h Handle) {
	entry, ok := t.entries[h.id]
	if !ok {
		return
	}
	entry.removed = true
	delete(t.entries, h.id)
}

// Run dispatches the named event to every listener registered at entry, in
// registration order. A listener that returns an error or panics is logged
// and skipped; siblings still run.
func (t *TriggerTable) Run(name string, args ...any) {
	t.compact(name)
	snapshot := t.lists[name]
	for _, entry := range snapshot {
		t.dispatch(name, entry, args)
	}
}

func (t *TriggerTable) dispatch(name string, entry *listenerEntry, args []any) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("trigger listener panicked",
				"event", name,
				"listener_id", entry.id,
				"panic", r,
			)
		}
	}()
	if err := entry.fn(args...); err != nil {
		t.log.Warn("trigger listener failed",
			"event", name,
			"listener_id", entry.id,
			"error", err,
		)
	}
}

// compact prunes entries removed in earlier rounds so the list does not grow
// without bound under register/remove churn.
func (t *TriggerTable) compact(name string) {
	list := t.lists[name]
	kept := list[:0]
	for _, entry := range list {
		if !entry.removed {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(t.lists, name)
		return
	}
	t.lists[name] = kept
}

// Len returns the number of live listeners for the named event.
func (t *TriggerTable) Len(name string) int {
	n := 0
	for _, entry := range t.lists[name] {
		if !entry.removed {
			n++
		}
	}
	return n
}
