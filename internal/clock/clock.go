/*
Copyright (c) BlueBridge contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package clock provides the monotonic millisecond timebase every
// freshness check and protocol timeout in the gateway is built on.
package clock

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Clock returns the current reading of a monotonic millisecond counter.
// It never goes backwards, but it may wrap (conceptually; in practice
// not within the lifetime of an embedded process) which is why
// boatdata's freshness predicate tolerates a future-timestamped
// observation rather than assuming simple subtraction is always valid.
type Clock interface {
	NowMs() int64
}

// System is a Clock backed by CLOCK_MONOTONIC, in the same spirit as
// fbclock/daemon's uptime() helper, which reads CLOCK_BOOTTIME via the
// same unix.ClockGettime call.
type System struct{}

// NowMs returns the current monotonic time in milliseconds.
func (System) NowMs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC cannot fail on any platform this gateway
		// targets; degrade to the standard library's wall-clock
		// milliseconds rather than panic.
		return time.Now().UnixMilli()
	}
	return ts.Nano() / int64(time.Millisecond)
}

// Fake is a settable Clock for tests, avoiding real sleeps the way
// servo/pi_test.go avoids them by injecting synthetic time.
type Fake struct {
	mu  sync.Mutex
	now int64
}

// NewFake returns a Fake clock starting at the given millisecond value.
func NewFake(startMs int64) *Fake {
	return &Fake{now: startMs}
}

// NowMs implements Clock.
func (f *Fake) NowMs() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set pins the fake clock to an exact millisecond value.
func (f *Fake) Set(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = ms
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += d.Milliseconds()
}
