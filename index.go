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

package weaktuple

import (
	"fmt"
	"weak"
)

// handle is the minted identity for one distinct tuple binding. It carries
// no data: a fresh non-zero-size allocation gives it a unique comparable
// address used for candidate-set membership and value-store lookup.
type handle struct{ _ byte }

func newHandle() *handle {
	return new(handle)
}

// position describes the structural role of a partial key within a tuple:
// its 1-based index and the tuple's total length. Keying candidate sets by
// position keeps a key that appears in tuples of different shapes, or at
// different spots of the same shape, from contaminating lookups.
type position struct {
	index  int
	length int
}

func (p position) String() string {
	return fmt.Sprintf("%d/%d", p.index, p.length)
}

type handleSet map[*handle]struct{}

// keyIndex is the per-key candidate bookkeeping. The outer map is keyed by
// weak.Pointer, which compares equal for the same object for the object's
// whole lifetime (and beyond) without keeping it reachable. Entries for a
// collected key are removed wholesale by Map.sweepKey.
//
// Methods are not locked; callers hold the owning Map's mutex.
type keyIndex[K any] struct {
	byKey map[weak.Pointer[K]]map[position]handleSet
}

func makeKeyIndex[K any]() keyIndex[K] {
	return keyIndex[K]{byKey: make(map[weak.Pointer[K]]map[position]handleSet)}
}

// register adds h to the candidate set for (ref, pos), creating the
// intermediate maps as needed. It is idempotent. The returned bool reports
// whether this is the first registration for the key, in which case the
// caller owes the key a collection sweep.
func (ix *keyIndex[K]) register(ref weak.Pointer[K], pos position, h *handle) (first bool) {
	positions, ok := ix.byKey[ref]
	if !ok {
		positions = make(map[position]handleSet)
		ix.byKey[ref] = positions
		first = true
	}
	set, ok := positions[pos]
	if !ok {
		set = make(handleSet)
		positions[pos] = set
	}
	set[h] = struct{}{}
	return first
}

// lookup returns the candidate set for (ref, pos), or nil if the key or
// position is unknown. The result aliases index state; callers must not
// mutate it.
func (ix *keyIndex[K]) lookup(ref weak.Pointer[K], pos position) handleSet {
	return ix.byKey[ref][pos]
}

// removeCandidate removes h from the candidate set for (ref, pos), pruning
// emptied intermediate maps. It is a no-op if h is already absent: removal
// races benignly with manual Delete and with collection sweeps, so it has
// to be idempotent.
func (ix *keyIndex[K]) removeCandidate(ref weak.Pointer[K], pos position, h *handle) {
	positions, ok := ix.byKey[ref]
	if !ok {
		return
	}
	set, ok := positions[pos]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(positions, pos)
	}
	if len(positions) == 0 {
		delete(ix.byKey, ref)
	}
}

// sweep removes the key's entire entry after the key has been collected.
func (ix *keyIndex[K]) sweep(ref weak.Pointer[K]) {
	delete(ix.byKey, ref)
}
