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

package aio

import (
	"fmt"

	"keelson.dev/keelson/pkg/abi/linux"
	"keelson.dev/keelson/pkg/log"
	"keelson.dev/keelson/pkg/uring"
)

// URingQueue implements Queue on a kernel io_uring instance. Operations
// added between calls to Wait accumulate in the submission queue and are
// handed to the kernel in a single batch.
//
// OpRead and OpWrite require Linux 5.6 or later; the other operations work
// on any kernel with io_uring support.
type URingQueue struct {
	ring *uring.Ring
	cap  int
}

// NewURingQueue returns a URingQueue with at least the given capacity. The
// caller owns the queue and must call Destroy.
func NewURingQueue(cap int) (*URingQueue, error) {
	r, err := uring.New(uring.Config{Entries: uint32(cap)})
	if err != nil {
		return nil, err
	}
	// The kernel rounds the submission queue up to a power of two; the
	// extra slots are usable capacity.
	return &URingQueue{ring: r, cap: int(r.SQEntries())}, nil
}

// Destroy implements Queue.Destroy.
func (q *URingQueue) Destroy() {
	if err := q.ring.Close(); err != nil {
		log.Warningf("Failed to destroy io_uring queue: %v", err)
	}
}

// Cap implements Queue.Cap.
func (q *URingQueue) Cap() int {
	return q.cap
}

// Add implements Queue.Add.
func (q *URingQueue) Add(r Request) {
	sqe := q.ring.GetSQE()
	if sqe == nil {
		// GetSQE cannot fail before Cap() descriptors are outstanding.
		panic("queue is full")
	}
	sqe.Fd = r.FD
	sqe.UserData = r.ID
	switch r.Op {
	case OpRead:
		sqe.Opcode = linux.IORING_OP_READ
	case OpWrite:
		sqe.Opcode = linux.IORING_OP_WRITE
	case OpReadv:
		sqe.Opcode = linux.IORING_OP_READV
	case OpWritev:
		sqe.Opcode = linux.IORING_OP_WRITEV
	case OpPollAdd:
		sqe.Opcode = linux.IORING_OP_POLL_ADD
		sqe.OpFlags = uint32(r.Len) // poll event mask
		return
	default:
		panic(fmt.Sprintf("unknown op %d", r.Op))
	}
	sqe.Off = uint64(r.Off)
	sqe.Addr = uint64(uintptr(r.Buf))
	sqe.Len = uint32(r.Len)
}

// Wait implements Queue.Wait.
func (q *URingQueue) Wait(cs []Completion, minCompletions int) ([]Completion, error) {
	_, err := q.ring.WaitCompletions(uint32(minCompletions), func(cqe *linux.IOUringCqe) {
		cs = append(cs, Completion{ID: cqe.UserData, Result: cqe.Res})
	})
	return cs, err
}
