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
	"runtime"
	"weak"
)

// edge records one partial key's participation in a binding: a weak
// reference to the key and the key's position descriptor within the tuple.
type edge[K any] struct {
	ref weak.Pointer[K]
	pos position
}

// coordinator owns the finalization watches for a single binding. One is
// created per Set call and never shared: it is the unit that ties together
// the binding's watches, its one-shot unwind state, and the strong
// reference the map keeps until the unwind has run. A watch is registered
// on every key of the tuple, and each watch carries the coordinator itself,
// so whichever key is collected first can clean up after all of them.
//
// A binding moves through three states: alive (all keys reachable, value
// resolvable), unwinding (first collection notice received, bookkeeping
// being removed), and cleaned (candidate entries gone, remaining watches
// stopped, value entry dropped). The transition runs exactly once, guarded
// by unwound under the Map's mutex, no matter how many of the binding's
// keys are eventually collected.
type coordinator[K any] struct {
	h       *handle
	edges   []edge[K]
	watches []runtime.Cleanup
	unwound bool
}

// unwind runs as a cleanup after one of a binding's keys has been
// collected. It removes the binding's handle from every surviving key's
// candidate set, stops the binding's remaining watches (the binding is dead
// regardless of which other keys are collected later), drops the value
// entry, and releases the coordinator.
func (m *Map[K, V]) unwind(c *coordinator[K]) {
	m.mu.Lock()
	if c.unwound {
		m.mu.Unlock()
		return
	}
	c.unwound = true

	for _, e := range c.edges {
		if e.ref.Value() == nil {
			// Key already collected; its index entry is (or will be)
			// removed wholesale by its own sweep.
			continue
		}
		m.idx.removeCandidate(e.ref, e.pos, c.h)
	}
	for _, w := range c.watches {
		// Stopping the watch that is currently running is a no-op.
		w.Stop()
	}

	value, live := m.values[c.h]
	delete(m.values, c.h)
	delete(m.coords, c)
	if debug {
		fmt.Printf("unwind: handle=%p live=%t\n", c.h, live)
	}
	reclaim := m.onReclaim
	m.mu.Unlock()

	// The callback runs unlocked; it may well re-enter the map.
	if live && reclaim != nil {
		reclaim(value)
	}
}
