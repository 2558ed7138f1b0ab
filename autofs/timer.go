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
	"sync"
	"time"

	"github.com/stacepellegrino/autofsd/clock"
)

// cancellableTimer is a time.AfterFunc-alike built on clock.Clock so that
// the cache-expiry and request-timeout timers run on a fake or simulated
// clock in tests instead of real wall-clock time.
type cancellableTimer struct {
	stop chan struct{}
	once sync.Once
}

// afterFunc schedules fn to run (in its own goroutine) after d elapses on
// clk, unless the returned timer is stopped first. Calling Stop after fn
// has already started does not block on or cancel fn; this mirrors
// time.Timer.Stop's semantics closely enough for the single-fire use here.
func afterFunc(clk clock.Clock, d time.Duration, fn func()) *cancellableTimer {
	t := &cancellableTimer{stop: make(chan struct{})}

	ch := clk.After(d)
	go func() {
		select {
		case <-ch:
			fn()
		case <-t.stop:
		}
	}()

	return t
}

// Stop cancels the timer if it has not yet fired. Idempotent and safe to
// call on a nil timer.
func (t *cancellableTimer) Stop() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.stop) })
}
