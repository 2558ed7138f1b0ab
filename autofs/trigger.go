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
	"errors"
)

// Trigger is the coordinator's accessor-facing entry point. Given a node
// and an optional child component name, it constructs or joins a request,
// parks the caller until the daemon answers (making at most
// cfg.RetryAttempts attempts in all on transient failures; ErrGoneAway and
// ErrInterrupted are returned at once), and applies the result to the
// node's cache state.
//
// interrupt, when non-nil and cfg.Interruptible is set, lets the caller
// (the vfsadapter boundary) plumb through a signal so a blocked accessor
// can be woken without waiting for the daemon. An interrupted caller
// detaches but does not cancel the request; remaining joiners still see it
// completed. If every caller has detached, the request is unlinked from
// the table and a later daemon completion for it fails with
// ErrNoSuchRequest.
//
// Callers must not hold mount's lock; Trigger never holds it while
// waiting.
func (c *Coordinator) Trigger(mount *Mount, node *Node, component string, interrupt <-chan struct{}) error {
	path := mount.Path(node)
	key := triggerKey(node, component)

	attempts := 0
	for {
		h := c.submitOrJoin(mount, node, path, key)
		err, wildcards := c.wait(h, c.cfg.Interruptible, interrupt)

		if err == nil {
			mount.mu.Lock()
			node.retries = 0
			if c.cfg.Cache > 0 {
				markCachedLocked(node, c.clk, wildcards, c.cfg.Cache, func() {
					mount.mu.Lock()
					markUncachedLocked(node)
					mount.mu.Unlock()
				})
			}
			mount.mu.Unlock()
			return nil
		}

		if errors.Is(err, ErrInterrupted) || errors.Is(err, ErrGoneAway) {
			mount.mu.Lock()
			node.retries = 0
			mount.mu.Unlock()
			return err
		}

		attempts++
		mount.mu.Lock()
		node.retries++
		mount.mu.Unlock()

		if attempts >= c.cfg.RetryAttempts {
			mount.mu.Lock()
			node.retries = 0
			mount.mu.Unlock()
			return err
		}

		<-c.clk.After(c.cfg.RetryDelay)
	}
}

// triggerKey picks the map key for a request: on the root, the key is the
// component name itself; elsewhere it's the name of the topmost non-root
// ancestor, which identifies the daemon's map entry regardless of how
// deep the access is within it.
func triggerKey(node *Node, component string) string {
	if node.IsRoot() {
		return component
	}

	cur := node
	for cur.parent != nil && !cur.parent.IsRoot() {
		cur = cur.parent
	}
	return cur.name
}

// IsCached reports whether an access on node (optionally for a named
// child component) can be served from cache. The one exception to a plain
// flag read: a wildcard root never counts as cached for a component the
// tree hasn't seen, so wildcard map entries can resolve new names even
// while the root is otherwise cached.
func (c *Coordinator) IsCached(mount *Mount, node *Node, component string) bool {
	mount.mu.RLock()
	defer mount.mu.RUnlock()

	if node.IsRoot() && component != "" && node.wildcards {
		if _, ok := find(node, component); !ok {
			return false
		}
	}
	return node.cached
}
