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

package gate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func resolved(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestEnterLeave(t *testing.T) {
	var g Gate
	for i := 1; i <= 3; i++ {
		if err := g.Enter(); err != nil {
			t.Fatalf("Enter %d failed: %v", i, err)
		}
		if got := g.Count(); got != i {
			t.Fatalf("Count = %d, want %d", got, i)
		}
	}
	for i := 2; i >= 0; i-- {
		g.Leave()
		if got := g.Count(); got != i {
			t.Fatalf("Count = %d, want %d", got, i)
		}
	}
}

func TestEnterAfterClose(t *testing.T) {
	var g Gate
	g.Close()
	if err := g.Enter(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enter after Close: got %v, want ErrClosed", err)
	}
	if got := g.Count(); got != 0 {
		t.Fatalf("refused Enter changed the count to %d", got)
	}
}

func TestCheck(t *testing.T) {
	var g Gate
	if err := g.Check(); err != nil {
		t.Fatalf("Check on an open gate failed: %v", err)
	}
	g.Close()
	if err := g.Check(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Check after Close: got %v, want ErrClosed", err)
	}
}

func TestCloseIdleDrainsSynchronously(t *testing.T) {
	var g Gate
	done := g.Close()
	if !resolved(done) {
		t.Fatalf("closing an idle gate left the drain pending")
	}
	if !g.IsClosed() {
		t.Fatalf("IsClosed = false after Close")
	}
}

func TestCloseWaitsForInflight(t *testing.T) {
	var g Gate
	const n = 3
	for i := 0; i < n; i++ {
		if err := g.Enter(); err != nil {
			t.Fatalf("Enter failed: %v", err)
		}
	}
	done := g.Close()
	for i := 0; i < n-1; i++ {
		if resolved(done) {
			t.Fatalf("drain resolved with %d operations still in flight", g.Count())
		}
		g.Leave()
	}
	if resolved(done) {
		t.Fatalf("drain resolved with one operation still in flight")
	}
	g.Leave()
	if !resolved(done) {
		t.Fatalf("drain pending after the last Leave")
	}
}

func TestCloseTwicePanics(t *testing.T) {
	var g Gate
	g.Close()
	defer func() {
		if recover() == nil {
			t.Errorf("second Close did not panic")
		}
	}()
	g.Close()
}

func TestLeaveWithoutEnterPanics(t *testing.T) {
	var g Gate
	defer func() {
		if recover() == nil {
			t.Errorf("unmatched Leave did not panic")
		}
	}()
	g.Leave()
}

func TestOnCloseRunsInsideClose(t *testing.T) {
	var g Gate
	var order []int
	g.OnClose(func() { order = append(order, 0) })
	g.OnClose(func() { order = append(order, 1) })
	g.OnClose(func() { order = append(order, 2) })
	if len(order) != 0 {
		t.Fatalf("listeners ran before Close")
	}
	g.Close()
	if diff := cmp.Diff([]int{0, 1, 2}, order); diff != "" {
		t.Errorf("listener order mismatch (-want +got):\n%s", diff)
	}
}

func TestOnCloseCancel(t *testing.T) {
	var g Gate
	ran := false
	sub := g.OnClose(func() { ran = true })
	sub.Cancel()
	g.Close()
	if ran {
		t.Errorf("canceled close listener still ran")
	}
}

func TestListenerObservesClosedGate(t *testing.T) {
	var g Gate
	g.OnClose(func() {
		if !g.IsClosed() {
			t.Errorf("listener ran with IsClosed = false")
		}
		if err := g.Enter(); !errors.Is(err, ErrClosed) {
			t.Errorf("Enter inside a close listener: got %v, want ErrClosed", err)
		}
	})
	g.Close()
}

func TestListenerRetiresLastOperation(t *testing.T) {
	var g Gate
	if err := g.Enter(); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	// A listener that completes the last in-flight operation resolves
	// the drain during the broadcast; Close must still return a resolved
	// channel without re-closing it.
	g.OnClose(func() { g.Leave() })
	done := g.Close()
	if !resolved(done) {
		t.Fatalf("drain pending although the listener retired the last operation")
	}
}

func TestWithGate(t *testing.T) {
	var g Gate
	sentinel := errors.New("sentinel")
	if err := WithGate(&g, func() error {
		if got := g.Count(); got != 1 {
			t.Errorf("Count inside WithGate = %d, want 1", got)
		}
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("WithGate: got %v, want the callback's error", err)
	}
	if got := g.Count(); got != 0 {
		t.Fatalf("Count after WithGate = %d, want 0", got)
	}

	g.Close()
	ran := false
	if err := WithGate(&g, func() error {
		ran = true
		return nil
	}); !errors.Is(err, ErrClosed) {
		t.Fatalf("WithGate on closed gate: got %v, want ErrClosed", err)
	}
	if ran {
		t.Fatalf("WithGate ran the callback on a closed gate")
	}
}
