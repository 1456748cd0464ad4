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

// Package task provides the schedulable unit of deferred work consumed by
// a dispatch loop, and a FIFO run queue to hold it.
//
// A Task binds a callback to a scheduling class, an opaque fairness tag
// the dispatch loop maps to shares. Tasks carry no result channel: a
// callback reports success or failure through its own closure, so running
// a task never fails from the scheduler's point of view.
package task

// Class identifies the fairness group a task is accounted to. This package
// treats classes as opaque tags; the dispatch loop gives them meaning.
type Class uint8

// Default is the class of tasks that never picked one.
const Default Class = 0

// Task is one unit of deferred work bound to a scheduling class.
//
// From enqueue until Run, a Task is owned exclusively by the queue holding
// it; the producer keeps no reference after handoff.
type Task struct {
	class Class
	fn    func()
}

// New binds fn to a scheduling class.
func New(class Class, fn func()) *Task {
	if fn == nil {
		panic("task.New called with a nil callback")
	}
	return &Task{class: class, fn: fn}
}

// Run invokes the callback. A task runs exactly once; a second Run panics.
func (t *Task) Run() {
	fn := t.fn
	if fn == nil {
		panic("task.Task.Run called twice")
	}
	t.fn = nil
	fn()
}

// Group returns the scheduling class the task was bound to.
func (t *Task) Group() Class {
	return t.class
}
