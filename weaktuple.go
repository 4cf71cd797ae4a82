// Copyright 2026 The Weaktuple Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package weaktuple implements a map keyed by ordered tuples of object
// references, where every reference is held weakly.
//
// A weaktuple.Map associates a tuple of partial keys []*K with a value. The
// tuple slice itself has no identity: two different slices holding the same
// pointers in the same order name the same binding. This is deliberately the
// opposite of a single-key weak map, where the identity of the key object
// itself is what matters, and the two must not be conflated — a Map is its
// own abstraction and satisfies no single-key map interface.
//
// # Design
//
// Each distinct tuple binding mints a handle: an opaque one-byte allocation
// whose address is its identity. The handle carries no data; it exists only
// for identity comparison and as the key into the value store.
//
// For every partial key the map maintains an index entry, keyed by
// weak.Pointer so the index is never a strong path to the key. The entry
// maps a position descriptor — the pair (1-based index, tuple length),
// e.g. 2/3 — to the set of candidate handles registered for that key at
// that structural role. Descriptors make candidate sets position- and
// length-specific, so a key reused across tuples of different shapes cannot
// cross-contaminate lookups.
//
// Resolving a tuple fetches the candidate set for each element at its
// position, picks the smallest set as the pivot, and returns the handle
// present in every set. Registration always adds one handle at every
// position of one tuple simultaneously, so the handle common to all fetched
// sets, if any, is the unique answer. Resolution costs O(len(tuple)) set
// fetches plus O(pivot × len(tuple)) membership tests; it degrades toward
// O(n·m) only when one key is reused at the same position and length across
// many bindings.
//
// Each Set call also wires a cleanup coordinator: a runtime.AddCleanup
// watch on every key of the tuple. Whichever key is collected first fires
// the unwind, which removes the binding's handle from every surviving key's
// candidate set, drops the value entry, and cancels the remaining watches.
// A binding therefore remains resolvable only while every one of its keys
// is externally reachable; once any key is collected, the binding, its
// value, and its bookkeeping all become reclaimable. Timing is up to the
// garbage collector: a value may linger for an unspecified interval after
// its keys become unreachable, which is not a leak as long as collection
// eventually happens.
//
// Values that strongly reference their own partial keys pin those keys (and
// hence the binding) for as long as the value is stored; the map has no
// ephemeron support.
//
// # Concurrency
//
// Cleanups run on a runtime-owned goroutine, so the Map guards its state
// with a mutex. As a consequence, and unlike most map libraries, a Map is
// safe for concurrent use.
package weaktuple

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"weak"
)

const debug = false

// Tuple validation errors. Both are rejections of the argument itself; no
// state is changed when they are returned.
var (
	// ErrEmptyTuple is returned by all operations when the tuple has no
	// elements.
	ErrEmptyTuple = errors.New("weaktuple: empty tuple")
	// ErrNilKey is returned by all operations when a tuple element is nil.
	// A nil pointer has no collectible identity to track.
	ErrNilKey = errors.New("weaktuple: nil partial key")
)

// Map associates ordered tuples of partial keys with values. Partial keys
// are referenced weakly: the map never keeps a key alive, and a binding
// lapses once any of its keys is collected. The zero value is not usable;
// construct with New.
type Map[K any, V any] struct {
	mu sync.Mutex
	// idx holds the per-key candidate bookkeeping. It must never be a
	// strong reference path to a partial key.
	idx keyIndex[K]
	// values is the value store, keyed by minted handle. Entries are
	// removed by Delete or by a coordinator unwinding.
	values map[*handle]V
	// coords holds every in-flight coordinator. A cleanup whose owner is
	// collected before its target may silently never run, so coordinators
	// stay strongly referenced here until they unwind.
	coords map[*coordinator[K]]struct{}
	// onReclaim, if set, observes values dropped by an unwind.
	onReclaim func(V)
}

// New constructs an empty Map.
func New[K any, V any](options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{
		idx:    makeKeyIndex[K](),
		values: make(map[*handle]V),
		coords: make(map[*coordinator[K]]struct{}),
	}
	for _, op := range options {
		op.apply(m)
	}
	return m
}

// Set binds the tuple to value, overwriting the previous value if the exact
// tuple (same length, order, and per-element identities) is already bound.
// Rebinding reuses the existing handle, so the binding stays single and the
// last write wins.
func (m *Map[K, V]) Set(keys []*K, value V) error {
	if err := validateTuple(keys); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.idx.resolve(keys)
	if !ok {
		h = newHandle()
	}
	if debug {
		fmt.Printf("set: len=%d handle=%p minted=%t\n", len(keys), h, !ok)
	}

	n := len(keys)
	c := &coordinator[K]{h: h, edges: make([]edge[K], n)}
	for i, k := range keys {
		pos := position{index: i + 1, length: n}
		ref := weak.Make(k)
		c.edges[i] = edge[K]{ref: ref, pos: pos}
		if m.idx.register(ref, pos, h) {
			// First time this key is seen: arrange for its whole index
			// entry to be dropped once the key itself is collected.
			runtime.AddCleanup(k, m.sweepKey, ref)
		}
	}

	// One watch per key. Whichever fires first unwinds the whole binding;
	// the rest are stopped then. The coordinator must not be reachable
	// from any key, only the reverse, which holds: it carries weak
	// references and the handle.
	c.watches = make([]runtime.Cleanup, n)
	for i, k := range keys {
		c.watches[i] = runtime.AddCleanup(k, m.unwind, c)
	}
	m.coords[c] = struct{}{}

	m.values[h] = value
	runtime.KeepAlive(keys)
	return nil
}

// Get returns the value bound to the tuple. ok is false if the exact tuple
// was never bound, a binding's key has been collected, or the binding was
// deleted. A stored zero value is returned with ok true.
func (m *Map[K, V]) Get(keys []*K) (value V, ok bool, err error) {
	if err := validateTuple(keys); err != nil {
		return value, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.idx.resolve(keys)
	if !ok {
		return value, false, nil
	}
	value, ok = m.values[h]
	return value, ok, nil
}

// Has reports whether the tuple is currently bound to a value.
func (m *Map[K, V]) Has(keys []*K) (bool, error) {
	if err := validateTuple(keys); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.idx.resolve(keys)
	if !ok {
		return false, nil
	}
	_, ok = m.values[h]
	return ok, nil
}

// Delete removes the tuple's value entry and reports whether a live binding
// existed. Index bookkeeping for the binding is left in place: it lapses
// when one of the keys is actually collected, and until then a Set of the
// identical tuple resolves the same handle.
func (m *Map[K, V]) Delete(keys []*K) (bool, error) {
	if err := validateTuple(keys); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.idx.resolve(keys)
	if !ok {
		return false, nil
	}
	_, live := m.values[h]
	delete(m.values, h)
	return live, nil
}

// Len returns the number of live value entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// sweepKey runs as a cleanup after a partial key has been collected and
// removes the key's entire index entry.
func (m *Map[K, V]) sweepKey(ref weak.Pointer[K]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idx.sweep(ref)
}

func validateTuple[K any](keys []*K) error {
	if len(keys) == 0 {
		return ErrEmptyTuple
	}
	for _, k := range keys {
		if k == nil {
			return ErrNilKey
		}
	}
	return nil
}
