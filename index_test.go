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
	"testing"
	"weak"

	"github.com/stretchr/testify/require"
)

func TestPositionString(t *testing.T) {
	require.Equal(t, "2/3", position{index: 2, length: 3}.String())
	require.Equal(t, "1/1", position{index: 1, length: 1}.String())
}

func TestRegisterIdempotent(t *testing.T) {
	ix := makeKeyIndex[int]()
	k := new(int)
	ref := weak.Make(k)
	p1 := position{index: 1, length: 2}
	p2 := position{index: 2, length: 2}
	h := newHandle()

	// first is reported once per key, not once per position.
	require.True(t, ix.register(ref, p1, h))
	require.False(t, ix.register(ref, p1, h))
	require.False(t, ix.register(ref, p2, h))

	require.Equal(t, 1, len(ix.lookup(ref, p1)))
	require.Equal(t, 1, len(ix.lookup(ref, p2)))
	require.Equal(t, 1, len(ix.byKey))
}

func TestLookupUnknown(t *testing.T) {
	ix := makeKeyIndex[int]()
	k := new(int)
	require.Empty(t, ix.lookup(weak.Make(k), position{index: 1, length: 1}))
}

func TestRemoveCandidatePrunes(t *testing.T) {
	ix := makeKeyIndex[int]()
	k := new(int)
	ref := weak.Make(k)
	p1 := position{index: 1, length: 2}
	p2 := position{index: 2, length: 2}
	h1, h2 := newHandle(), newHandle()

	ix.register(ref, p1, h1)
	ix.register(ref, p1, h2)
	ix.register(ref, p2, h1)

	ix.removeCandidate(ref, p1, h1)
	require.Equal(t, 1, len(ix.lookup(ref, p1)))

	// Removing an absent handle is a no-op.
	ix.removeCandidate(ref, p1, h1)
	require.Equal(t, 1, len(ix.lookup(ref, p1)))

	// Draining a position prunes it; draining the last position prunes
	// the key.
	ix.removeCandidate(ref, p1, h2)
	require.Empty(t, ix.lookup(ref, p1))
	ix.removeCandidate(ref, p2, h1)
	require.Equal(t, 0, len(ix.byKey))

	// Removal against an unknown key is a no-op too.
	ix.removeCandidate(ref, p1, h1)
}

func TestSweep(t *testing.T) {
	ix := makeKeyIndex[int]()
	k := new(int)
	ref := weak.Make(k)
	ix.register(ref, position{index: 1, length: 1}, newHandle())

	ix.sweep(ref)
	require.Equal(t, 0, len(ix.byKey))
	ix.sweep(ref) // idempotent
}

func TestResolve(t *testing.T) {
	reg := func(ix *keyIndex[int], keys []*int, h *handle) {
		for i, k := range keys {
			ix.register(weak.Make(k), position{index: i + 1, length: len(keys)}, h)
		}
	}

	t.Run("basic", func(t *testing.T) {
		ix := makeKeyIndex[int]()
		a, b := new(int), new(int)
		h := newHandle()
		reg(&ix, []*int{a, b}, h)

		got, ok := ix.resolve([]*int{a, b})
		require.True(t, ok)
		require.Same(t, h, got)

		_, ok = ix.resolve([]*int{b, a})
		require.False(t, ok)
		_, ok = ix.resolve([]*int{a})
		require.False(t, ok)
	})

	t.Run("unregistered-key-sinks-intersection", func(t *testing.T) {
		ix := makeKeyIndex[int]()
		a := new(int)
		reg(&ix, []*int{a}, newHandle())

		_, ok := ix.resolve([]*int{a, new(int)})
		require.False(t, ok)
	})

	t.Run("pivot-smallest-set", func(t *testing.T) {
		// a is reused at position 1/2 across many bindings; b appears in
		// exactly one. The intersection must come out the same no matter
		// which set drives it.
		ix := makeKeyIndex[int]()
		a, b := new(int), new(int)

		want := newHandle()
		reg(&ix, []*int{a, b}, want)
		for i := 0; i < 100; i++ {
			reg(&ix, []*int{a, new(int)}, newHandle())
		}
		require.Equal(t, 101, len(ix.lookup(weak.Make(a), position{index: 1, length: 2})))
		require.Equal(t, 1, len(ix.lookup(weak.Make(b), position{index: 2, length: 2})))

		got, ok := ix.resolve([]*int{a, b})
		require.True(t, ok)
		require.Same(t, want, got)
	})

	t.Run("stale-candidate-ignored", func(t *testing.T) {
		// A candidate left behind in one key's set (e.g. bookkeeping that
		// has not lapsed yet) cannot be resolved unless it is present in
		// every set.
		ix := makeKeyIndex[int]()
		a, b := new(int), new(int)
		h := newHandle()
		reg(&ix, []*int{a, b}, h)
		ix.register(weak.Make(a), position{index: 1, length: 2}, newHandle())

		got, ok := ix.resolve([]*int{a, b})
		require.True(t, ok)
		require.Same(t, h, got)
	})
}
