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
	"fmt"

	"github.com/stacepellegrino/autofsd/clock"
)

// LOCK ORDERING
//
// Let M be a Mount's tree lock and C be the Coordinator's request-table
// lock. Trigger never holds M while waiting on C, so the only rule that
// matters in this package is:
//
//   * Acquire M before C, never the reverse.
//   * Never hold two different Mounts' locks at once.
//
// The tree lock is held only for quick, in-memory structural edits, so
// nothing long-running ever blocks on it.

// Mount is a unit of automounted subtree. One Mount owns exactly one node
// tree.
type Mount struct {
	From    string
	On      string
	Options string
	Prefix  string

	clk clock.Clock

	// mu protects everything below. Shared (RLock) for find; exclusive for
	// any structural edit. See the LOCK ORDERING note above.
	mu *rwInvariantMutex

	// GUARDED_BY(mu)
	lastInode uint64

	// GUARDED_BY(mu)
	root *Node
}

// NewMount creates a Mount with a freshly minted root node (inode 1, name
// ".").
func NewMount(from, on, options, prefix string, clk clock.Clock) *Mount {
	m := &Mount{
		From:    from,
		On:      on,
		Options: options,
		Prefix:  prefix,
		clk:     clk,
	}
	m.mu = newRWInvariantMutex(m.checkInvariants)

	m.mu.Lock()
	m.lastInode = 1
	m.root = newNode(nil, 1, ".", clk.Now())
	m.mu.Unlock()

	return m
}

// Root returns the mount's root node.
func (m *Mount) Root() *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// checkInvariants walks the whole tree and panics on any structural
// corruption: empty or duplicate names, unsorted children, bad parent
// pointers, reused inodes. Run after every exclusive critical section.
func (m *Mount) checkInvariants() {
	if m.root == nil {
		return
	}

	seen := map[uint64]bool{1: true}
	var walk func(n *Node)
	walk = func(n *Node) {
		prevName := ""
		for _, c := range n.children {
			if c.name == "" {
				panic("autofs: node with empty name")
			}
			if c.name <= prevName && prevName != "" {
				panic(fmt.Sprintf("autofs: children of %q not sorted: %q after %q", n.name, c.name, prevName))
			}
			prevName = c.name

			if c.parent != n {
				panic(fmt.Sprintf("autofs: node %q has wrong parent pointer", c.name))
			}
			if seen[c.inode] {
				panic(fmt.Sprintf("autofs: inode %d reused", c.inode))
			}
			seen[c.inode] = true
			if c.inode > m.lastInode {
				panic(fmt.Sprintf("autofs: inode %d > lastInode %d", c.inode, m.lastInode))
			}
			walk(c)
		}
	}
	walk(m.root)
}

// NewNode allocates and links a child of parent named name, assigning it
// the mount's next inode. Self-locking: this is the entry point for code
// outside this package; code within this package that already holds the
// lock uses the unexported newNode instead.
func (m *Mount) NewNode(parent *Node, name string) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastInode++
	return newNode(parent, m.lastInode, name, m.clk.Now())
}

// Find looks up name among parent's children. Self-locking; see NewNode's
// note on the internal/external split.
func (m *Mount) Find(parent *Node, name string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return find(parent, name)
}

// Delete removes a childless node from the tree. Self-locking; see
// NewNode's note on the internal/external split.
func (m *Mount) Delete(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(n.children) != 0 {
		panic("autofs: Delete called on a node with children")
	}
	if n.parent == nil {
		return
	}
	deleteChild(n.parent, n)
}

// Path returns n's absolute path, rooted at the host mountpoint: the
// mount's On followed by each ancestor name down to n, every component
// slash-terminated, e.g. "/mnt/" for the root and "/mnt/home/bob/" for a
// nested node. The trailing slash is part of the wire contract with the
// daemon.
func (m *Mount) Path(n *Node) string {
	path := ""
	for cur := n; cur.parent != nil; cur = cur.parent {
		path = cur.name + "/" + path
	}
	return m.On + "/" + path
}

// Teardown peels the tree bottom-up, one full layer of leaves at a time,
// until only the root remains, then deletes the root itself. This covers
// arbitrarily deep trees built by indirect maps even though ordinary
// directory removal is never supported.
func (m *Mount) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		var leaves []*Node
		collectLeaves(m.root, &leaves)
		if len(leaves) == 0 {
			break
		}
		for _, leaf := range leaves {
			deleteChild(leaf.parent, leaf)
		}
	}
	if m.root != nil {
		if m.root.cacheTimer != nil {
			m.root.cacheTimer.Stop()
		}
		m.root = nil
	}
}

// collectLeaves appends every childless descendant of n to out. The root
// itself is never included since it has no parent to unlink it from.
func collectLeaves(n *Node, out *[]*Node) {
	if n.parent != nil && len(n.children) == 0 {
		*out = append(*out, n)
		return
	}
	for _, c := range n.children {
		collectLeaves(c, out)
	}
}
