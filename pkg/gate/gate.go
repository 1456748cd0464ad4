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

// Package gate provides a quiescence barrier for in-flight operations.
//
// A Gate counts operations in flight. Closing it stops new entries,
// synchronously broadcasts a cancellation signal to registered close
// listeners, and reports through the channel Close returns when the last
// outstanding operation has left. Shutdown code gets a deterministic
// drain: tell everything to stop, then wait for quiescence.
//
// Users:
//
//	if err := g.Enter(); err != nil {
//		// Gate is closed; don't start new work.
//		return err
//	}
//	// Do something covered by the gate.
//	[...]
//	g.Leave()
//
// Closer:
//
//	done := g.Close() // every OnClose listener has run by now
//	<-done            // every Enter has been matched by a Leave
//
// A Gate belongs to one execution context and is not safe for concurrent
// use. It must outlive every operation and listener registered with it.
package gate

import (
	"errors"

	"keelson.dev/keelson/pkg/abort"
)

// ErrClosed is returned by Enter and Check once Close has been called. It
// means "stop starting new work", not that anything failed.
var ErrClosed = errors.New("gate is closed")

// Gate is a quiescence barrier. The zero value is an open gate with
// nothing in flight.
//
// A Gate moves through three states: open, where Enter is legal; closing,
// entered by Close, where entries are refused but in-flight operations
// keep running; and drained, reached when the in-flight count hits zero
// while closing. Closing is never undone.
type Gate struct {
	count  int
	closed bool

	// drained is created by Close and closed once quiescent. drainDone
	// keeps the transition single-shot even when a close listener calls
	// Leave for the last in-flight operation during the broadcast.
	drained   chan struct{}
	drainDone bool

	signal abort.Source
}

// Enter registers a new in-flight operation. It fails with ErrClosed once
// Close has been called; on success the caller must eventually call Leave.
func (g *Gate) Enter() error {
	if g.closed {
		return ErrClosed
	}
	g.count++
	return nil
}

// Leave retires an in-flight operation. It must match a successful Enter;
// leaving with nothing in flight panics. If the gate is closing and this
// was the last operation, the drain notification resolves before Leave
// returns.
func (g *Gate) Leave() {
	if g.count == 0 {
		panic("gate.Gate.Leave with no operations in flight")
	}
	g.count--
	if g.closed {
		g.maybeDrain()
	}
}

// Check returns ErrClosed once Close has been called and nil otherwise,
// without touching the in-flight count. Long-running operations call it to
// yield to shutdown between steps instead of holding the gate to the end.
func (g *Gate) Check() error {
	if g.closed {
		return ErrClosed
	}
	return nil
}

// Close closes the gate and returns a channel that is closed once every
// in-flight operation has left. Before returning, Close synchronously runs
// every listener registered with OnClose, so all of them observe the
// shutdown within the closing call; if nothing is in flight afterwards the
// returned channel is already closed.
//
// Close may be called at most once; a second call panics.
func (g *Gate) Close() <-chan struct{} {
	if g.closed {
		panic("gate.Gate.Close called twice")
	}
	g.closed = true
	// The channel must exist before the broadcast: a listener may retire
	// the last in-flight operation, resolving the drain mid-broadcast.
	g.drained = make(chan struct{})
	g.signal.Abort()
	g.maybeDrain()
	return g.drained
}

func (g *Gate) maybeDrain() {
	if g.count == 0 && !g.drainDone {
		g.drainDone = true
		close(g.drained)
	}
}

// OnClose registers fn to run synchronously inside Close, in registration
// order, and returns a handle to cancel the registration. Registering on a
// closed gate panics; check IsClosed first where that is not known.
func (g *Gate) OnClose(fn func()) *abort.Subscription {
	return g.signal.Subscribe(fn)
}

// Count returns the number of operations in flight.
func (g *Gate) Count() int {
	return g.count
}

// IsClosed returns whether Close has been called.
func (g *Gate) IsClosed() bool {
	return g.closed
}

// WithGate runs fn as one gated operation: it enters g, runs fn, and
// leaves again even if fn fails. Once g is closing it returns ErrClosed
// without running fn.
func WithGate(g *Gate, fn func() error) error {
	if err := g.Enter(); err != nil {
		return err
	}
	defer g.Leave()
	return fn()
}
