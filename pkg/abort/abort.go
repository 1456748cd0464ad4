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

// Package abort provides a one-shot broadcast cancellation signal.
//
// A Source collects callbacks through Subscribe; Abort runs every live
// callback synchronously, in subscription order, exactly once. A
// Subscription handle cancels its registration, guaranteeing the callback
// never runs afterwards.
//
// A Source and its subscriptions belong to one execution context. Nothing
// in this package is safe for concurrent use, and a Source must outlive
// every operation subscribed to it.
package abort

// Source is a one-shot broadcast cancellation signal. The zero value is a
// valid, unaborted Source.
type Source struct {
	// subs holds registered callbacks in subscription order. Canceling
	// leaves a nil hole rather than compacting, so the slot indices held
	// by outstanding Subscription handles stay stable.
	subs    []func()
	aborted bool
}

// Aborted returns whether Abort has been called.
func (s *Source) Aborted() bool {
	return s.aborted
}

// Subscribe registers fn to run when Abort is called and returns a handle
// that can cancel the registration. Subscribing to an aborted Source is a
// caller bug and panics; check Aborted first when the Source's state is
// not known.
func (s *Source) Subscribe(fn func()) *Subscription {
	if s.aborted {
		panic("abort.Source.Subscribe called after Abort")
	}
	if fn == nil {
		panic("abort.Source.Subscribe called with a nil callback")
	}
	s.subs = append(s.subs, fn)
	return &Subscription{src: s, index: len(s.subs) - 1}
}

// Abort marks the Source aborted and runs every live subscriber
// synchronously, in subscription order. Every subscriber runs exactly
// once: a subscriber may cancel a not-yet-delivered sibling, but nothing
// can subscribe once the broadcast has started. Abort may be called at
// most once; a second call panics.
func (s *Source) Abort() {
	if s.aborted {
		panic("abort.Source.Abort called twice")
	}
	s.aborted = true
	for i := range s.subs {
		if fn := s.subs[i]; fn != nil {
			s.subs[i] = nil
			fn()
		}
	}
	s.subs = nil
}

// Subscription is a handle to one Source registration. The zero value is
// inert.
type Subscription struct {
	src   *Source
	index int
}

// Cancel removes the registration, guaranteeing the callback will not run
// afterwards. Canceling twice, or canceling after the Source aborted, is a
// no-op: the callback has already run or been dropped.
func (sub *Subscription) Cancel() {
	src := sub.src
	if src == nil {
		return
	}
	sub.src = nil
	// After Abort the subscriber list is gone and there is nothing to
	// unregister.
	if sub.index < len(src.subs) {
		src.subs[sub.index] = nil
	}
}
