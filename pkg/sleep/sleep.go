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

// Package sleep provides timed waits that lose gracefully to shutdown.
//
// Abortable is the composition the lifecycle primitives exist for: arm a
// timer and a close listener on a gate, and let whichever fires first
// decide the outcome without leaking the other.
package sleep

import (
	"errors"
	"time"

	"keelson.dev/keelson/pkg/clock"
	"keelson.dev/keelson/pkg/gate"
	"keelson.dev/keelson/pkg/sync"
)

// ErrAborted is delivered by Abortable when the gate closes before the
// timer fires.
var ErrAborted = errors.New("sleep aborted by gate close")

// Abortable arms a one-shot wait of d on c that closing g aborts.
//
// The returned channel delivers exactly one outcome: nil if the timer won,
// ErrAborted if the gate's close broadcast won. The race is decided by
// whether the close listener could still stop the timer, so once the timer
// has fired the elapsed wait stands even if the gate closes before the
// outcome is consumed. If g is already closed the outcome is ErrAborted
// and the timer is never armed.
//
// release undoes the timer and the listener registration; call it once the
// outcome has been consumed:
//
//	res, release := sleep.Abortable(c, d, g)
//	defer release()
//	if err := <-res; err != nil {
//		// Shut down; the wait was aborted.
//	}
//
// Abortable must be called, and released, from the gate's execution
// context. Only the timer callback runs elsewhere, and it touches nothing
// beyond the wait's own state.
func Abortable(c clock.Clock, d time.Duration, g *gate.Gate) (<-chan error, func()) {
	done := make(chan error, 1)
	if g.IsClosed() {
		done <- ErrAborted
		return done, func() {}
	}

	// The timer callback arrives on the clock's goroutine while the
	// close listener runs on the gate's context; whichever resolves
	// first wins and the flag drops the loser.
	var (
		mu       sync.Mutex
		resolved bool
	)
	resolve := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if resolved {
			return
		}
		resolved = true
		done <- err
	}

	timer := c.AfterFunc(d, func() { resolve(nil) })
	sub := g.OnClose(func() {
		// The close wins only when the timer had not fired yet.
		if timer.Stop() {
			resolve(ErrAborted)
		}
	})
	release := func() {
		timer.Stop()
		sub.Cancel()
	}
	return done, release
}

// Sleep blocks until d elapses on c. It cannot be aborted; prefer
// Abortable for waits that must yield to shutdown.
func Sleep(c clock.Clock, d time.Duration) {
	fired := make(chan struct{})
	c.AfterFunc(d, func() { close(fired) })
	<-fired
}
