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

import (
	"sort"
	"time"

	"github.com/stacepellegrino/autofsd/clock"
)

// Node is one directory entry in the automount tree. All of its mutable
// fields are GUARDED_BY the owning Mount's tree lock; there is
// deliberately no per-node lock here; vnode association is the VFS
// adapter boundary's concern, not this package's.
type Node struct {
	name   string
	inode  uint64
	parent *Node

	// GUARDED_BY(mount.mu)
	children []*Node

	// GUARDED_BY(mount.mu)
	cached bool

	// wildcards is meaningful only on the root node.
	//
	// GUARDED_BY(mount.mu)
	wildcards bool

	ctime time.Time

	// GUARDED_BY(mount.mu)
	retries int

	// cacheTimer, if non-nil, is the pending one-shot cache-expiry timer
	// armed by markCachedLocked. Firing it clears cached; the node itself
	// is never freed by the timer.
	//
	// GUARDED_BY(mount.mu)
	cacheTimer *cancellableTimer
}

// Name returns the node's name. Immutable for the node's lifetime.
func (n *Node) Name() string { return n.name }

// Inode returns the node's mount-unique inode number, which is never
// reused. Immutable for the node's lifetime.
func (n *Node) Inode() uint64 { return n.inode }

// Parent returns the node's parent, or nil iff this is the mount root.
// Stable for the node's lifetime.
func (n *Node) Parent() *Node { return n.parent }

// IsRoot reports whether n is the root of its mount's tree.
func (n *Node) IsRoot() bool { return n.parent == nil }

// CTime returns the node's creation time, used for all of
// atime/mtime/ctime.
func (n *Node) CTime() time.Time { return n.ctime }

// Cached reports whether the node is currently treated as resolved and
// should not be re-triggered. Callers needing the root-wildcard exception
// should use Coordinator.IsCached instead of this directly.
func (n *Node) Cached() bool { return n.cached }

// Wildcards reports the node's wildcard flag (meaningful only on root).
func (n *Node) Wildcards() bool { return n.wildcards }

// Retries returns the node's consecutive-failed-trigger counter.
func (n *Node) Retries() int { return n.retries }

// newNode allocates a node with the supplied inode number, inserting it
// into parent's children if parent is non-nil. The root is just a node
// with parent == nil and inode == 1, not a distinct type.
//
// Precondition, enforced by the mount's invariant check: no existing child
// of parent currently has this name. Callers must hold the mount lock
// exclusively.
func newNode(parent *Node, inode uint64, name string, now time.Time) *Node {
	n := &Node{
		name:   name,
		inode:  inode,
		parent: parent,
		ctime:  now,
	}

	if parent != nil {
		parent.children = append(parent.children, n)
		sort.Slice(parent.children, func(i, j int) bool {
			return parent.children[i].name < parent.children[j].name
		})
	}

	return n
}

// find performs a lexicographic search of parent's children. Callers must
// hold the mount lock, shared or exclusive.
func find(parent *Node, name string) (*Node, bool) {
	children := parent.children
	i := sort.Search(len(children), func(i int) bool {
		return children[i].name >= name
	})
	if i < len(children) && children[i].name == name {
		return children[i], true
	}
	return nil, false
}

// deleteChild unlinks child from parent's children. Preconditions: child
// has no children of its own, and the mount lock is held exclusively. Any
// pending cache timer on child is stopped; Stop is safe to call even if
// the timer already fired or was never armed, which is what makes this
// idempotent against a concurrent timer fire.
func deleteChild(parent *Node, child *Node) {
	if child.cacheTimer != nil {
		child.cacheTimer.Stop()
		child.cacheTimer = nil
	}

	children := parent.children
	for i, c := range children {
		if c == child {
			parent.children = append(children[:i], children[i+1:]...)
			break
		}
	}
}

// markCachedLocked sets cached = true, copies wildcards from the
// daemon-supplied hint, and arms a one-shot timer that clears the flag
// after d elapses. Callers must hold the mount lock exclusively. d <= 0
// means "never expire"; callers skip caching entirely when the configured
// interval is not positive, but the guard lives here too.
func markCachedLocked(n *Node, clk clock.Clock, wildcards bool, d time.Duration, onExpire func()) {
	n.cached = true
	n.wildcards = wildcards

	if n.cacheTimer != nil {
		n.cacheTimer.Stop()
		n.cacheTimer = nil
	}

	if d <= 0 {
		return
	}

	n.cacheTimer = afterFunc(clk, d, onExpire)
}

// markUncachedLocked clears the cached flag. Called by the cache timer
// firing; a failed trigger simply never sets the flag, so the next access
// re-triggers immediately.
func markUncachedLocked(n *Node) {
	n.cached = false
}
