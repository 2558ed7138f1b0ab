// Copyright 2025 Google LLC
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

package autofs

import "sync"

// rwInvariantMutex is the per-mount analogue of github.com/jacobsa/syncutil's
// InvariantMutex: it runs a user-supplied invariant check after every
// exclusive critical section, panicking on violation so that corruption of
// the node tree is caught at the point it happens rather than later. Unlike
// InvariantMutex it also supports shared (read) locking, which the mount
// tree lock needs for Find; the coordinator's lock, which is never
// read-shared, uses syncutil.InvariantMutex directly (see coordinator.go).
type rwInvariantMutex struct {
	mu              sync.RWMutex
	checkInvariants func()
}

func newRWInvariantMutex(check func()) *rwInvariantMutex {
	return &rwInvariantMutex{checkInvariants: check}
}

// Lock acquires the lock exclusively.
func (m *rwInvariantMutex) Lock() {
	m.mu.Lock()
}

// Unlock releases an exclusive lock, checking invariants first.
func (m *rwInvariantMutex) Unlock() {
	if m.checkInvariants != nil {
		m.checkInvariants()
	}
	m.mu.Unlock()
}

// RLock acquires the lock for shared (read-only) access.
func (m *rwInvariantMutex) RLock() {
	m.mu.RLock()
}

// RUnlock releases a shared lock.
func (m *rwInvariantMutex) RUnlock() {
	m.mu.RUnlock()
}
