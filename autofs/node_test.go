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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacepellegrino/autofsd/clock"
)

func TestNode_RootHasNoParent(t *testing.T) {
	root := newNode(nil, 1, ".", time.Now())
	assert.True(t, root.IsRoot())
	assert.Nil(t, root.Parent())
}

func TestNode_FindLocatesChildByName(t *testing.T) {
	root := newNode(nil, 1, ".", time.Now())
	home := newNode(root, 2, "home", time.Now())
	newNode(root, 3, "etc", time.Now())

	got, ok := find(root, "home")
	require.True(t, ok)
	assert.Same(t, home, got)

	_, ok = find(root, "missing")
	assert.False(t, ok)
}

func TestNode_ChildrenStaySortedByName(t *testing.T) {
	root := newNode(nil, 1, ".", time.Now())
	newNode(root, 2, "zebra", time.Now())
	newNode(root, 3, "alpha", time.Now())
	newNode(root, 4, "mid", time.Now())

	names := make([]string, len(root.children))
	for i, c := range root.children {
		names[i] = c.name
	}
	assert.Equal(t, []string{"alpha", "mid", "zebra"}, names)
}

func TestNode_DeleteChildUnlinksAndStopsTimer(t *testing.T) {
	root := newNode(nil, 1, ".", time.Now())
	child := newNode(root, 2, "home", time.Now())

	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	fired := make(chan struct{}, 1)
	markCachedLocked(child, clk, false, time.Minute, func() { fired <- struct{}{} })
	require.NotNil(t, child.cacheTimer)

	deleteChild(root, child)

	assert.Empty(t, root.children)
	assert.Nil(t, child.cacheTimer)

	// The timer was stopped, so advancing well past its deadline must not
	// fire the callback.
	clk.AdvanceTime(time.Hour)
	select {
	case <-fired:
		t.Fatal("cache timer fired after its node was deleted")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNode_MarkCachedLocked_ExpiresAfterDuration(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	n := newNode(nil, 1, ".", clk.Now())

	expired := make(chan struct{}, 1)
	markCachedLocked(n, clk, true, 50*time.Millisecond, func() { expired <- struct{}{} })

	assert.True(t, n.cached)
	assert.True(t, n.wildcards)

	clk.AdvanceTime(51 * time.Millisecond)

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("cache expiry callback never fired")
	}
}

func TestNode_MarkCachedLocked_ZeroDurationNeverExpires(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	n := newNode(nil, 1, ".", clk.Now())

	markCachedLocked(n, clk, false, 0, func() { t.Fatal("must not be called") })
	assert.Nil(t, n.cacheTimer)

	clk.AdvanceTime(time.Hour)
}

func TestNode_MarkUncachedLocked(t *testing.T) {
	n := newNode(nil, 1, ".", time.Now())
	n.cached = true
	markUncachedLocked(n)
	assert.False(t, n.cached)
}
