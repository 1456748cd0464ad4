// Copyright 2026 The Keelson Authors.
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

// Package clock provides the monotonic clock and one-shot timer interface
// consumed by the lifecycle primitives, so that anything racing a timer
// against a shutdown signal can run under a manually advanced clock in
// tests. Real returns the implementation backed by the runtime's timers;
// the faketime subpackage provides the manual one.
package clock

import (
	"time"
)

// A Clock tells time and schedules work against it.
type Clock interface {
	// Now returns the clock's current time.
	Now() time.Time

	// AfterFunc schedules fn to run, on its own goroutine, once d has
	// elapsed. The returned Timer can stop or reschedule it.
	AfterFunc(d time.Duration, fn func()) Timer
}

// A Timer is a single scheduled callback.
type Timer interface {
	// Stop unschedules the callback, returning whether it did: false
	// means the callback already started or the timer was already
	// stopped. Stop does not wait for a started callback to return.
	Stop() bool

	// Reset reschedules the callback for d from now, returning whether
	// the timer was still pending. The teardown caveats of
	// time.Timer.Reset apply.
	Reset(d time.Duration) bool
}

type realClock struct{}

// Real returns the Clock backed by the runtime's timers.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{timer: time.AfterFunc(d, fn)}
}

type realTimer struct {
	timer *time.Timer
}

func (rt realTimer) Stop() bool {
	return rt.timer.Stop()
}

func (rt realTimer) Reset(d time.Duration) bool {
	return rt.timer.Reset(d)
}
