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

// Package aio provides asynchronous I/O on host file descriptors.
//
// A Queue executes operations concurrently with the goroutine that enqueues
// them. Each operation is identified by a caller-chosen ID and completes
// exactly once; its completion carries the same ID back together with the
// operation's result. Callers bound the number of operations in flight by
// Cap and reap completions with Wait.
//
// NewURingQueue returns a Queue backed by a kernel io_uring instance;
// NewGoQueue returns a portable fallback that performs each operation as an
// ordinary blocking syscall on a worker goroutine.
package aio

import (
	"golang.org/x/sys/unix"
)

// Queue is an asynchronous I/O queue.
//
// Queues are not safe to use concurrently from multiple goroutines.
type Queue interface {
	// Destroy releases resources owned by the Queue.
	//
	// Preconditions: All enqueued operations have completed and their
	// completions have been reaped by Wait.
	Destroy()

	// Cap returns the Queue's capacity, the maximum number of operations
	// that may be concurrently in flight.
	Cap() int

	// Add enqueues an operation. The operation may not begin executing
	// until the following call to Wait.
	//
	// Preconditions: The number of operations in flight is below Cap().
	Add(r Request)

	// Wait blocks until at least minCompletions enqueued operations have
	// completed, then appends all available completions to cs and returns
	// the extended slice. Completions already appended to cs are kept even
	// when Wait returns a non-nil error.
	//
	// Preconditions: minCompletions does not exceed the number of
	// operations in flight.
	Wait(cs []Completion, minCompletions int) ([]Completion, error)
}

// Op identifies an asynchronous I/O operation.
type Op uint8

// Operations supported by all Queue implementations.
const (
	OpRead Op = iota
	OpWrite
	OpReadv
	OpWritev
	OpPollAdd
)

// Completion is the outcome of an asynchronous I/O operation.
type Completion struct {
	ID     uint64 // Request.ID of the corresponding Request
	Result int32  // bytes transferred or event mask; -errno on failure
}

// Err returns a non-nil error if c is the completion of a failed operation.
func (c Completion) Err() error {
	if c.Result < 0 {
		return unix.Errno(-c.Result)
	}
	return nil
}

// PollAdd enqueues a single poll of fd for events (a POLL* event mask). The
// completion result holds the subset of events that became ready.
//
// Preconditions: As for q.Add().
func PollAdd(q Queue, id uint64, fd int32, events uint32) {
	q.Add(Request{
		ID:  id,
		Op:  OpPollAdd,
		FD:  fd,
		Len: int(events),
	})
}
