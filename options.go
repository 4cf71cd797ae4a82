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

// option provide an interface to do work on Map while it is being created.
type option[K any, V any] interface {
	apply(m *Map[K, V])
}

type onReclaimOption[K any, V any] struct {
	f func(V)
}

func (op onReclaimOption[K, V]) apply(m *Map[K, V]) {
	m.onReclaim = op.f
}

// WithOnReclaim is an option to observe values the collector reclaims. f is
// called with the stored value after a binding has been unwound because one
// of its partial keys was collected, at most once per binding, on the
// runtime's cleanup goroutine and without internal locks held. It is not
// called for Delete, which removes a binding under the caller's own
// control. Useful for disposing values that own resources, and for tests
// that need to know cleanup has happened.
func WithOnReclaim[K any, V any](f func(value V)) option[K, V] {
	return onReclaimOption[K, V]{f}
}
