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

// Package vfsadapter is the thin boundary between the host VFS and the
// trigger coordinator: it turns lookup/readdir/getattr events into
// autofs.Coordinator.Trigger calls. It is deliberately the smallest
// package here; the real host VFS (directory lookup, mount/unmount
// dispatch) is modeled only by the jacobsa/fuse/fuseops types its
// methods speak.
//
// The Adapter embeds fuseutil.NotImplementedFileSystem so every VFS op it
// doesn't care about fails closed (ENOSYS), overriding only the handful
// of ops that can observe an automount miss.
package vfsadapter

import (
	"context"
	"sync"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/stacepellegrino/autofsd/autofs"
)

// SessionFunc returns the opaque session identity of the calling process.
// Bound per-call rather than once at construction because the adapter is
// shared across every accessing thread.
type SessionFunc func() autofs.SessionID

// Adapter implements the subset of the VFS file-system interface that can
// trigger an automount. It owns the mapping from fuseops.InodeID to the
// autofs.Node it names, weak references the core package explicitly
// leaves to this boundary.
type Adapter struct {
	fuseutil.NotImplementedFileSystem

	Coordinator *autofs.Coordinator
	Mount       *autofs.Mount
	Session     SessionFunc

	// MountOnStat mirrors the mount-on-stat knob: if set,
	// GetInodeAttributes on the mountpoint root also triggers. Only the
	// root; a stat lower in the tree never does.
	MountOnStat bool

	mu      sync.Mutex
	byInode map[fuseops.InodeID]*autofs.Node
}

// NewAdapter creates an Adapter bound to a coordinator and the mount it
// serves, pre-registering the mount's root under fuseops.RootInodeID.
func NewAdapter(coord *autofs.Coordinator, mount *autofs.Mount, session SessionFunc, mountOnStat bool) *Adapter {
	a := &Adapter{
		Coordinator: coord,
		Mount:       mount,
		Session:     session,
		MountOnStat: mountOnStat,
		byInode:     make(map[fuseops.InodeID]*autofs.Node),
	}
	a.byInode[fuseops.RootInodeID] = mount.Root()
	return a
}

// register records node under its own inode number so later ops can map
// fuseops.InodeID back to it. Idempotent.
func (a *Adapter) register(node *autofs.Node) fuseops.InodeID {
	id := fuseops.InodeID(node.Inode())

	a.mu.Lock()
	a.byInode[id] = node
	a.mu.Unlock()

	return id
}

func (a *Adapter) lookupByID(id fuseops.InodeID) *autofs.Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byInode[id]
}

// shouldSkipTrigger reports whether the caller is the daemon itself,
// which must never re-enter the trigger path while walking its own
// mountpoint.
func (a *Adapter) shouldSkipTrigger() bool {
	if a.Session == nil {
		return false
	}
	return a.Coordinator.IgnoreCurrentThread(a.Session())
}

// triggerIfNeeded consults IsCached and, on a miss, blocks in Trigger
// unless the caller is the daemon itself. ctx's cancellation doubles as
// the interrupt channel: the host cancels an op's context when the
// accessing process takes a signal, which is exactly the event an
// interruptible wait needs plumbed in.
func (a *Adapter) triggerIfNeeded(ctx context.Context, node *autofs.Node, component string) error {
	if a.Coordinator.IsCached(a.Mount, node, component) {
		return nil
	}
	if a.shouldSkipTrigger() {
		return nil
	}
	return a.Coordinator.Trigger(a.Mount, node, component, ctx.Done())
}

// LookUpInode triggers on a miss for the named child, then resolves the
// child node from the (now presumably daemon-populated) tree.
func (a *Adapter) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent := a.lookupByID(op.Parent)
	if parent == nil {
		return fuse.ENOENT
	}

	if err := a.triggerIfNeeded(ctx, parent, op.Name); err != nil {
		return err
	}

	child, ok := a.Mount.Find(parent, op.Name)
	if !ok {
		return fuse.ENOENT
	}

	id := a.register(child)
	op.Entry.Child = id
	op.Entry.Attributes = attributesFor(child)
	return nil
}

// GetInodeAttributes triggers only for a stat of the mountpoint root, and
// only when MountOnStat is set.
func (a *Adapter) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	node := a.lookupByID(op.Inode)
	if node == nil {
		return fuse.ENOENT
	}

	if node.IsRoot() && a.MountOnStat {
		if err := a.triggerIfNeeded(ctx, node, ""); err != nil {
			return err
		}
	}

	op.Attributes = attributesFor(node)
	return nil
}

// ReadDir triggers once for the directory itself (component = "") before
// the host lists it, so wildcard maps have a chance to populate children.
// Emitting the dirents themselves is the host VFS's job; the automount
// core only guarantees the tree is populated by the time the listing runs.
func (a *Adapter) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	node := a.lookupByID(op.Inode)
	if node == nil {
		return fuse.ENOENT
	}
	return a.triggerIfNeeded(ctx, node, "")
}

func attributesFor(n *autofs.Node) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mtime: n.CTime(),
		Atime: n.CTime(),
		Ctime: n.CTime(),
	}
}
