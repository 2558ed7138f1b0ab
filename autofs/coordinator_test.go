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
	"golang.org/x/sync/errgroup"

	"github.com/stacepellegrino/autofsd/clock"
)

type testSession struct{ id int }

func (s testSession) Equal(other SessionID) bool {
	o, ok := other.(testSession)
	return ok && o.id == s.id
}

func newTestCoordinator(cfg Config) (*Coordinator, *clock.SimulatedClock) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	return NewCoordinator(cfg, clk), clk
}

// waitForRequestCount polls (the test clock never advances on its own, so a
// short real-time poll loop is how these tests observe the production
// goroutines reaching a blocking point) until the coordinator's request
// table has exactly n live entries or the deadline elapses.
func waitForRequestCount(t *testing.T, c *Coordinator, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := c.requests.Len()
		c.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("request table never reached length %d", n)
}

func TestCoordinator_Coalescing(t *testing.T) {
	cfg := Config{RetryAttempts: 1, Interruptible: false}
	c, _ := newTestCoordinator(cfg)
	m := NewMount("home", "/mnt", "", "", clock.NewSimulatedClock(time.Unix(0, 0)))
	root := m.Root()

	const n = 8
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return c.Trigger(m, root, "x", nil)
		})
	}

	waitForRequestCount(t, c, 1)

	snap, err := c.Fetch(testSession{id: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Done(snap.ID, 0, false))

	// Every coalesced caller must observe the same successful completion.
	require.NoError(t, g.Wait())

	waitForRequestCount(t, c, 0)
}

func TestCoordinator_RefcountZeroUnlinksRequest(t *testing.T) {
	cfg := Config{RetryAttempts: 1}
	c, _ := newTestCoordinator(cfg)
	m := NewMount("home", "/mnt", "", "", clock.NewSimulatedClock(time.Unix(0, 0)))
	root := m.Root()

	done := make(chan struct{})
	go func() {
		_ = c.Trigger(m, root, "solo", nil)
		close(done)
	}()

	waitForRequestCount(t, c, 1)
	snap, err := c.Fetch(testSession{id: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Done(snap.ID, 0, false))

	<-done
	waitForRequestCount(t, c, 0)
}

func TestCoordinator_FIFOFetch(t *testing.T) {
	cfg := Config{RetryAttempts: 1}
	c, _ := newTestCoordinator(cfg)
	m := NewMount("home", "/mnt", "", "", clock.NewSimulatedClock(time.Unix(0, 0)))
	root := m.Root()

	for i, name := range []string{"a", "b", "c"} {
		name := name
		go func() { _ = c.Trigger(m, root, name, nil) }()
		waitForRequestCount(t, c, i+1)
	}

	var seen []string
	for i := 0; i < 3; i++ {
		snap, err := c.Fetch(testSession{id: 1}, nil)
		require.NoError(t, err)
		seen = append(seen, snap.Key)
		require.NoError(t, c.Done(snap.ID, 0, false))
	}

	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestCoordinator_SelfSuppression(t *testing.T) {
	cfg := Config{}
	c, _ := newTestCoordinator(cfg)
	daemon := testSession{id: 7}

	require.NoError(t, c.Open(daemon))
	assert.True(t, c.IgnoreCurrentThread(daemon))
	assert.False(t, c.IgnoreCurrentThread(testSession{id: 8}))

	c.Close()
	assert.False(t, c.IgnoreCurrentThread(daemon))
}

func TestCoordinator_NoNegativeCache(t *testing.T) {
	cfg := Config{RetryAttempts: 1}
	c, _ := newTestCoordinator(cfg)
	m := NewMount("home", "/mnt", "", "", clock.NewSimulatedClock(time.Unix(0, 0)))
	root := m.Root()

	errs := make(chan error, 1)
	go func() { errs <- c.Trigger(m, root, "x", nil) }()

	waitForRequestCount(t, c, 1)
	snap, err := c.Fetch(testSession{id: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Done(snap.ID, 5, false))

	err = <-errs
	require.Error(t, err)
	assert.False(t, root.Cached())
}

func TestCoordinator_SuccessCachesNode(t *testing.T) {
	cfg := Config{RetryAttempts: 1, Cache: time.Minute}
	c, _ := newTestCoordinator(cfg)
	m := NewMount("home", "/mnt", "", "", clock.NewSimulatedClock(time.Unix(0, 0)))
	root := m.Root()

	errs := make(chan error, 1)
	go func() { errs <- c.Trigger(m, root, "home", nil) }()

	waitForRequestCount(t, c, 1)
	snap, err := c.Fetch(testSession{id: 1}, nil)
	require.NoError(t, err)

	// The daemon sees the mountpoint-rooted path and the component as the
	// map key.
	assert.Equal(t, "/mnt/", snap.Path)
	assert.Equal(t, "home", snap.Key)
	assert.Equal(t, "home", snap.From)

	require.NoError(t, c.Done(snap.ID, 0, false))

	require.NoError(t, <-errs)
	assert.True(t, root.Cached())
	assert.False(t, root.Wildcards())
}

func TestCoordinator_OpenTwiceFailsBusy(t *testing.T) {
	c, _ := newTestCoordinator(Config{})
	require.NoError(t, c.Open(testSession{id: 1}))
	assert.ErrorIs(t, c.Open(testSession{id: 2}), ErrBusy)
}

func TestCoordinator_DoneUnknownID(t *testing.T) {
	c, _ := newTestCoordinator(Config{})
	assert.ErrorIs(t, c.Done(999, 0, false), ErrNoSuchRequest)
}
