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

import "weak"

// resolve returns the handle bound to the exact tuple, if one exists.
//
// Registration adds one handle at every position of one tuple in a single
// Set call, so a handle present in the candidate set of every element at
// its position is necessarily the tuple's own binding, and there can be at
// most one such handle. The smallest fetched set drives the intersection
// (ties broken by first occurrence) to keep the common case cheap.
//
// Not finding a handle is a normal outcome, not an error. Callers hold the
// Map's mutex.
func (ix *keyIndex[K]) resolve(keys []*K) (*handle, bool) {
	n := len(keys)
	sets := make([]handleSet, n)
	pivot := 0
	for i, k := range keys {
		sets[i] = ix.lookup(weak.Make(k), position{index: i + 1, length: n})
		if len(sets[i]) == 0 {
			// One unregistered key sinks the whole intersection.
			return nil, false
		}
		if len(sets[i]) < len(sets[pivot]) {
			pivot = i
		}
	}

outer:
	for h := range sets[pivot] {
		for i, set := range sets {
			if i == pivot {
				continue
			}
			if _, ok := set[h]; !ok {
				continue outer
			}
		}
		return h, true
	}
	return nil, false
}
