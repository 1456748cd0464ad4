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

package task

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const interactive Class = 1

func TestRunInvokesCallback(t *testing.T) {
	ran := 0
	tk := New(Default, func() { ran++ })
	if got := tk.Group(); got != Default {
		t.Fatalf("Group = %d, want Default", got)
	}
	tk.Run()
	if ran != 1 {
		t.Fatalf("callback ran %d times, want 1", ran)
	}
}

func TestRunTwicePanics(t *testing.T) {
	tk := New(Default, func() {})
	tk.Run()
	defer func() {
		if recover() == nil {
			t.Errorf("second Run did not panic")
		}
	}()
	tk.Run()
}

func TestNewNilCallbackPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("New with a nil callback did not panic")
		}
	}()
	New(Default, nil)
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(interactive)
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		q.Push(New(interactive, func() { got = append(got, i) }))
	}
	if got := q.Len(); got != 5 {
		t.Fatalf("Len = %d, want 5", got)
	}
	if n := q.RunAll(); n != 5 {
		t.Fatalf("RunAll ran %d tasks, want 5", n)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, got); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}
	if q.Pop() != nil {
		t.Errorf("Pop on a drained queue returned a task")
	}
}

func TestQueueRejectsOtherClass(t *testing.T) {
	q := NewQueue(Default)
	defer func() {
		if recover() == nil {
			t.Errorf("Push with a mismatched class did not panic")
		}
	}()
	q.Push(New(interactive, func() {}))
}

func TestRunAllIncludesRequeued(t *testing.T) {
	q := NewQueue(Default)
	var got []string
	q.Push(New(Default, func() {
		got = append(got, "first")
		q.Push(New(Default, func() { got = append(got, "second") }))
	}))
	if n := q.RunAll(); n != 2 {
		t.Fatalf("RunAll ran %d tasks, want 2", n)
	}
	if diff := cmp.Diff([]string{"first", "second"}, got); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}
}
