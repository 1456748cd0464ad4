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
	"github.com/eapache/queue"
)

// Queue is a FIFO run queue for one scheduling class. It belongs to a
// single execution context and is not safe for concurrent use.
type Queue struct {
	class Class
	tasks *queue.Queue
}

// NewQueue returns an empty run queue accepting tasks of the given class.
func NewQueue(class Class) *Queue {
	return &Queue{class: class, tasks: queue.New()}
}

// Class returns the scheduling class this queue serves.
func (q *Queue) Class() Class {
	return q.class
}

// Push enqueues t. Tasks run in the order they were pushed. Pushing a task
// of another scheduling class is a caller bug and panics.
func (q *Queue) Push(t *Task) {
	if t.Group() != q.class {
		panic("task.Queue.Push with a task of another scheduling class")
	}
	q.tasks.Add(t)
}

// Pop dequeues the oldest task, or returns nil if the queue is empty.
func (q *Queue) Pop() *Task {
	if q.tasks.Length() == 0 {
		return nil
	}
	return q.tasks.Remove().(*Task)
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return q.tasks.Length()
}

// RunAll pops and runs tasks until the queue is empty, including tasks
// enqueued by the ones it runs, and returns how many ran.
func (q *Queue) RunAll() int {
	n := 0
	for {
		t := q.Pop()
		if t == nil {
			return n
		}
		t.Run()
		n++
	}
}
