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

// Package faketime provides clock.Clock implementations that advance only
// when told to, for deterministic tests of timer-driven code.
package faketime

import (
	"container/heap"
	"sync"
	"time"

	"github.com/dpjacques/clockwork"

	"keelson.dev/keelson/pkg/clock"
)

// NullClock is a clock.Clock that never advances and never fires. Timers
// scheduled on it report a successful Stop forever, which makes it useful
// for exercising the non-timer arm of a timer race.
type NullClock struct{}

var _ clock.Clock = (*NullClock)(nil)

// Now implements clock.Clock.Now.
func (*NullClock) Now() time.Time {
	return time.Time{}
}

// AfterFunc implements clock.Clock.AfterFunc.
func (*NullClock) AfterFunc(time.Duration, func()) clock.Timer {
	return nullTimer{}
}

type nullTimer struct{}

func (nullTimer) Stop() bool {
	return true
}

func (nullTimer) Reset(time.Duration) bool {
	return true
}

// ManualClock is a clock.Clock that advances only through Advance.
//
// Advance runs every callback scheduled within the advanced window and
// waits for it to finish before moving further, so after Advance returns
// the caller observes a world where all of that work has happened.
type ManualClock struct {
	clock clockwork.FakeClock

	// mu protects the fields below.
	mu sync.Mutex

	// times is a min-heap of scheduled deadlines, for quick retrieval of
	// the next one due.
	times *timeHeap

	// waitGroups tracks, per deadline, the callbacks scheduled for it,
	// so Advance can wait for the goroutines the underlying fake clock
	// spawns when the deadline passes.
	waitGroups map[time.Time]*sync.WaitGroup
}

var _ clock.Clock = (*ManualClock)(nil)

// NewManualClock creates a ManualClock at an arbitrary initial time.
func NewManualClock() *ManualClock {
	return &ManualClock{
		clock:      clockwork.NewFakeClock(),
		times:      &timeHeap{},
		waitGroups: make(map[time.Time]*sync.WaitGroup),
	}
}

// Now implements clock.Clock.Now.
func (mc *ManualClock) Now() time.Time {
	return mc.clock.Now()
}

// AfterFunc implements clock.Clock.AfterFunc.
func (mc *ManualClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	t := &manualTimer{
		clock: mc,
		until: mc.clock.Now().Add(d),
	}
	mc.addWait(t.until)
	// The callback retires the wait for the deadline the timer holds when
	// it fires, not the one it was created with: Reset moves the
	// accounting along with the deadline.
	t.timer = mc.clock.AfterFunc(d, func() {
		defer t.fired()
		fn()
	})
	return t
}

// addWait registers one more callback due at t and returns the WaitGroup
// tracking the callbacks for that deadline.
func (mc *ManualClock) addWait(t time.Time) *sync.WaitGroup {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if wg, ok := mc.waitGroups[t]; ok {
		wg.Add(1)
		return wg
	}
	heap.Push(mc.times, t)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	mc.waitGroups[t] = wg
	return wg
}

// removeWait retires one callback due at t, either because it ran or
// because its timer was stopped or rescheduled.
func (mc *ManualClock) removeWait(t time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.waitGroups[t].Done()
}

// Advance moves the clock forward by d, running every callback scheduled
// within that window in deadline order and waiting for each batch to
// finish before moving to the next.
func (mc *ManualClock) Advance(d time.Duration) {
	until := mc.clock.Now().Add(d)
	for {
		mc.mu.Lock()
		if mc.times.Len() == 0 {
			mc.mu.Unlock()
			break
		}
		t := heap.Pop(mc.times).(time.Time)
		if t.After(until) {
			// Not due within this window; put it back.
			heap.Push(mc.times, t)
			mc.mu.Unlock()
			break
		}
		mc.mu.Unlock()

		mc.clock.Advance(t.Sub(mc.clock.Now()))

		mc.mu.Lock()
		wg := mc.waitGroups[t]
		mc.mu.Unlock()
		wg.Wait()

		mc.mu.Lock()
		delete(mc.waitGroups, t)
		mc.mu.Unlock()
	}
	if now := mc.clock.Now(); until.After(now) {
		mc.clock.Advance(until.Sub(now))
	}
}

type manualTimer struct {
	clock *ManualClock
	timer clockwork.Timer

	// mu protects until.
	mu    sync.Mutex
	until time.Time
}

var _ clock.Timer = (*manualTimer)(nil)

// fired retires the wait for the callback that just ran.
func (t *manualTimer) fired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clock.removeWait(t.until)
}

// Reset implements clock.Timer.Reset.
func (t *manualTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	active := t.timer.Reset(d)
	if active {
		// The pending wait moves to the new deadline. A stopped or fired
		// timer has no wait outstanding; re-arming it starts a fresh one.
		t.clock.removeWait(t.until)
	}
	t.until = t.clock.clock.Now().Add(d)
	t.clock.addWait(t.until)
	return active
}

// Stop implements clock.Timer.Stop.
func (t *manualTimer) Stop() bool {
	if !t.timer.Stop() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.clock.removeWait(t.until)
	return true
}

type timeHeap []time.Time

var _ heap.Interface = (*timeHeap)(nil)

func (h timeHeap) Len() int {
	return len(h)
}

func (h timeHeap) Less(i, j int) bool {
	return h[i].Before(h[j])
}

func (h timeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *timeHeap) Push(x any) {
	*h = append(*h, x.(time.Time))
}

func (h *timeHeap) Pop() any {
	last := (*h)[len(*h)-1]
	*h = (*h)[:len(*h)-1]
	return last
}
