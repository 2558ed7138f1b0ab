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
	"log"
	"sync"
	"time"

	"github.com/jacobsa/syncutil"

	"github.com/stacepellegrino/autofsd/clock"
	"github.com/stacepellegrino/autofsd/common"
	"github.com/stacepellegrino/autofsd/metrics"
)

// Config bundles the coordinator's runtime-tunable knobs. Fields are read
// without locking; they are treated as immutable for the life of the
// coordinator.
type Config struct {
	Debug         int
	MountOnStat   bool
	Timeout       time.Duration
	Cache         time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Interruptible bool
}

// Coordinator owns the table of outstanding trigger requests and the
// daemon session binding. Exactly one Coordinator serves every Mount,
// which is what lets a single daemon process answer every automount in
// the system.
type Coordinator struct {
	cfg Config
	clk clock.Clock

	// mu serializes every mutation of the request table and the
	// daemon-open/daemon-session fields. Unlike the per-mount lock this one
	// is never read-shared; see mount.go's LOCK ORDERING note for how it is
	// ordered against a Mount's lock.
	mu syncutil.InvariantMutex

	// cond is the coordinator's single wait channel: every producer (a
	// daemon completion, a request's timeout timer, the unmount sweep, and a
	// fresh submission waking a parked Fetch) broadcasts on it, and every
	// waiter re-evaluates its own condition on wake.
	cond *sync.Cond

	// GUARDED_BY(mu)
	requests *common.OrderedList[*Request]

	// GUARDED_BY(mu)
	daemonOpen bool

	// GUARDED_BY(mu)
	daemonSession SessionID

	// GUARDED_BY(mu)
	nextRequestID int64

	// metrics is nil-safe: every call site guards with a nil check so a
	// Coordinator built without SetMetrics still runs.
	metrics *metrics.Handle

	// logger discards everything unless cfg.Debug is at least 1.
	logger *log.Logger
}

// SetMetrics attaches a metrics.Handle. Not part of NewCoordinator because
// most unit tests have no need of a registry.
func (c *Coordinator) SetMetrics(h *metrics.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = h
}

// SessionID is the opaque identity of a process (group), compared only by
// equality. The host binds one in at device open and at every Fetch; see
// the devctl package for the real OS-backed implementation.
type SessionID interface {
	Equal(SessionID) bool
}

// NewCoordinator creates a Coordinator with an empty request table.
func NewCoordinator(cfg Config, clk clock.Clock) *Coordinator {
	c := &Coordinator{cfg: cfg, clk: clk, logger: getLogger(cfg.Debug)}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	c.cond = sync.NewCond(&c.mu)
	c.requests = common.NewOrderedList[*Request]()
	return c
}

// checkInvariants panics if two live requests share a (mount, path, key)
// triple; new callers must coalesce onto the existing one instead.
func (c *Coordinator) checkInvariants() {
	type triple struct {
		mount *Mount
		path  string
		key   string
	}
	seen := make(map[triple]bool)
	c.requests.Each(func(e *common.Elem[*Request]) bool {
		r := e.Value
		if r.Done {
			return false
		}
		t := triple{r.mount, r.Path, r.Key}
		if seen[t] {
			panic("autofs: two live requests share (mount, path, key)")
		}
		seen[t] = true
		return false
	})
}

// requestHandle is what submitOrJoin hands back: a joined Request plus the
// Elem needed to unlink it later. Joiners onto an existing request share
// the same *Request and the same Elem.
type requestHandle struct {
	req  *Request
	elem *common.Elem[*Request]
}

// submitOrJoin locates a live request with the same (mount, path, key)
// and joins it, or inserts a fresh one at the tail of the table. Callers
// must not hold any Mount lock; this takes the coordinator lock
// internally.
func (c *Coordinator) submitOrJoin(mount *Mount, node *Node, path, key string) *requestHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found *requestHandle
	c.requests.Each(func(e *common.Elem[*Request]) bool {
		r := e.Value
		if r.mount == mount && r.Path == path && r.Key == key && !r.Done {
			r.refcount++
			found = &requestHandle{req: r, elem: e}
			return true
		}
		return false
	})
	if found != nil {
		c.logger.Printf("request %d: joined, refcount now %d", found.req.ID, found.req.refcount)
		if c.metrics != nil {
			c.metrics.RecordJoin()
		}
		return found
	}

	c.nextRequestID++
	r := &Request{
		ID:          c.nextRequestID,
		mount:       mount,
		From:        mount.From,
		Path:        path,
		Prefix:      mount.Prefix,
		Key:         key,
		Options:     mount.Options,
		refcount:    1,
		submittedAt: c.clk.Now(),
	}
	e := c.requests.PushBack(r)
	r.elem = e

	if c.cfg.Timeout > 0 {
		r.timeoutTimer = afterFunc(c.clk, c.cfg.Timeout, func() { c.onTimeout(r) })
	}

	c.logger.Printf("request %d: submitted, path %q key %q", r.ID, r.Path, r.Key)
	if c.metrics != nil {
		c.metrics.RecordSubmit()
	}

	c.cond.Broadcast()
	return &requestHandle{req: r, elem: e}
}

// onTimeout is the request timeout timer callback. Setting wildcards=true
// alongside the error keeps root-node wildcard retries viable after a
// timeout.
func (c *Coordinator) onTimeout(r *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Done {
		return
	}
	c.logger.Printf("request %d: timed out", r.ID)
	r.Error = ErrTimeout
	r.Wildcards = true
	r.Done = true
	r.InProgress = false
	if c.metrics != nil {
		c.metrics.RecordTimeout()
	}
	c.cond.Broadcast()
}

// wait parks the caller until the request completes, then snapshots its
// (error, wildcards) pair and drops the caller's reference. Callers must
// have already released any VFS-side vnode lock; this package has no way
// to enforce that, so it is the vfsadapter package's responsibility.
//
// In interruptible mode, a value received on interrupt causes an
// immediate return with ErrInterrupted and the request is NOT retried by
// the caller. interrupt may be nil, meaning uninterruptible wait.
func (c *Coordinator) wait(h *requestHandle, interruptible bool, interrupt <-chan struct{}) (err error, wildcards bool) {
	c.mu.Lock()

	r := h.req
	r.waiters++

	if interruptible && interrupt != nil {
		// sync.Cond has no select-based wait, so a dedicated goroutine
		// translates an interrupt signal into a Broadcast the waiter below
		// will notice. done guards against leaking this goroutine once the
		// request completes on its own.
		done := make(chan struct{})
		interrupted := false
		defer close(done)
		go func() {
			select {
			case <-interrupt:
				c.mu.Lock()
				interrupted = true
				c.cond.Broadcast()
				c.mu.Unlock()
			case <-done:
			}
		}()

		for !r.Done && !interrupted {
			c.cond.Wait()
		}

		if interrupted && !r.Done {
			r.waiters--
			if c.metrics != nil {
				c.metrics.RecordWaiterLeft()
				if r.waiters == 0 {
					c.metrics.RecordOutcome(c.clk.Now().Sub(r.submittedAt).Seconds(), "interrupted")
				}
			}
			c.unlinkIfUnreferencedLocked(h)
			c.mu.Unlock()
			return ErrInterrupted, false
		}
	} else {
		for !r.Done {
			c.cond.Wait()
		}
	}

	err = r.Error
	wildcards = r.Wildcards
	r.waiters--

	if c.metrics != nil {
		c.metrics.RecordWaiterLeft()
		if r.waiters == 0 {
			c.metrics.RecordOutcome(c.clk.Now().Sub(r.submittedAt).Seconds(), outcomeLabel(err))
		}
	}

	c.unlinkIfUnreferencedLocked(h)
	c.mu.Unlock()
	return err, wildcards
}

// outcomeLabel maps a request's terminal error to the metrics.Handle
// completions label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrGoneAway):
		return "gone_away"
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	default:
		return "error"
	}
}

// unlinkIfUnreferencedLocked decrements refcount and, if it has reached
// zero, cancels the timeout timer and unlinks the request from the
// table. Callers must hold c.mu.
func (c *Coordinator) unlinkIfUnreferencedLocked(h *requestHandle) {
	h.req.refcount--
	if h.req.refcount > 0 {
		return
	}
	if h.req.timeoutTimer != nil {
		h.req.timeoutTimer.Stop()
	}
	c.requests.Remove(h.elem)
}

// RequestSnapshot is the information copied out to the daemon on a
// fetch.
type RequestSnapshot struct {
	ID      int64
	From    string
	Path    string
	Prefix  string
	Key     string
	Options string
}

// daemonFetch hands the daemon the oldest request that is neither done
// nor already claimed, parking until one exists. interrupt, if non-nil
// and it fires before a request is found, causes an immediate return with
// ErrInterrupted.
func (c *Coordinator) daemonFetch(interrupt <-chan struct{}) (RequestSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// sync.Cond has no select-based wait, so a signal that arrives while
	// parked in c.cond.Wait() below would otherwise never wake it; a
	// dedicated goroutine translates the interrupt into a Broadcast, same
	// as wait()'s interruptible path.
	interrupted := false
	if interrupt != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-interrupt:
				c.mu.Lock()
				interrupted = true
				c.cond.Broadcast()
				c.mu.Unlock()
			case <-done:
			}
		}()
	}

	for {
		if interrupted {
			return RequestSnapshot{}, ErrInterrupted
		}

		var found *Request
		c.requests.Each(func(e *common.Elem[*Request]) bool {
			r := e.Value
			if !r.Done && !r.InProgress {
				found = r
				return true
			}
			return false
		})

		if found != nil {
			found.InProgress = true
			c.logger.Printf("request %d: claimed by daemon", found.ID)
			return RequestSnapshot{
				ID:      found.ID,
				From:    found.From,
				Path:    found.Path,
				Prefix:  found.Prefix,
				Key:     found.Key,
				Options: found.Options,
			}, nil
		}

		c.cond.Wait()
	}
}

// daemonComplete applies the daemon's answer for the request with the
// given id and wakes every joined waiter.
func (c *Coordinator) daemonComplete(id int64, errno int, wildcards bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target *Request
	c.requests.Each(func(e *common.Elem[*Request]) bool {
		if e.Value.ID == id {
			target = e.Value
			return true
		}
		return false
	})

	if target == nil {
		c.logger.Printf("request %d: completion for unknown id", id)
		return ErrNoSuchRequest
	}

	c.logger.Printf("request %d: done, errno %d wildcards %v", id, errno, wildcards)

	if target.timeoutTimer != nil {
		target.timeoutTimer.Stop()
	}

	if errno != 0 {
		target.Error = &DaemonError{Errno: errno}
	} else {
		target.Error = nil
	}
	target.Wildcards = wildcards
	target.Done = true
	target.InProgress = false

	c.cond.Broadcast()
	return nil
}

// teardownSweep repeatedly force-fails every request belonging to mount
// with ErrGoneAway until a pass finds none of mount's requests left in the
// table, giving joined callers a chance to drain before the mount's tree
// disappears.
func (c *Coordinator) teardownSweep(mount *Mount, tick time.Duration) {
	for {
		c.mu.Lock()
		var targets []*Request
		remaining := 0
		c.requests.Each(func(e *common.Elem[*Request]) bool {
			r := e.Value
			if r.mount == mount {
				remaining++
				if !r.Done {
					targets = append(targets, r)
				}
			}
			return false
		})

		if len(targets) > 0 {
			for _, r := range targets {
				r.timeoutTimer.Stop()
				c.logger.Printf("request %d: mount gone away", r.ID)
				r.Error = ErrGoneAway
				r.Done = true
				r.InProgress = false
			}
			c.cond.Broadcast()
		}
		c.mu.Unlock()

		if remaining == 0 {
			return
		}
		<-c.clk.After(tick)
	}
}
