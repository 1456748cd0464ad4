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

	"golang.org/x/sys/unix"
	"keelson.dev/keelson/pkg/sync"
)

// GoQueue implements Queue using a pool of worker goroutines, each of which
// executes operations as ordinary blocking syscalls. It works on any host,
// including those without io_uring support.
type GoQueue struct {
	requests chan Request
	results  chan Completion
	workers  sync.WaitGroup
}

// NewGoQueue returns a GoQueue with the given capacity.
func NewGoQueue(cap int) *GoQueue {
	if cap <= 0 {
		panic(fmt.Sprintf("invalid queue capacity %d", cap))
	}
	q := &GoQueue{
		requests: make(chan Request, cap),
		results:  make(chan Completion, cap),
	}
	// One worker per slot: a full queue keeps every operation executing
	// rather than waiting behind a busy worker.
	q.workers.Add(cap)
	for i := 0; i < cap; i++ {
		go q.worker()
	}
	return q
}

func (q *GoQueue) worker() {
	defer q.workers.Done()
	for r := range q.requests {
		q.results <- executeRequest(r)
	}
}

// Destroy implements Queue.Destroy.
func (q *GoQueue) Destroy() {
	close(q.requests)
	q.workers.Wait()
}

// Cap implements Queue.Cap.
func (q *GoQueue) Cap() int {
	return cap(q.requests)
}

// Add implements Queue.Add.
func (q *GoQueue) Add(r Request) {
	select {
	case q.requests <- r:
	default:
		// Both channels hold Cap() entries, so this is only reachable if
		// the caller exceeded the queue's capacity.
		panic("queue is full")
	}
}

// Wait implements Queue.Wait.
func (q *GoQueue) Wait(cs []Completion, minCompletions int) ([]Completion, error) {
	for i := 0; i < minCompletions; i++ {
		cs = append(cs, <-q.results)
	}
	for {
		select {
		case c := <-q.results:
			cs = append(cs, c)
		default:
			return cs, nil
		}
	}
}

// pollOnce blocks until fd is ready for at least one of events, then returns
// the mask of ready events.
func pollOnce(fd int32, events uint32) (int, error) {
	pfds := [1]unix.PollFd{{Fd: fd, Events: int16(events)}}
	if _, err := unix.Poll(pfds[:], -1); err != nil {
		return 0, err
	}
	return int(pfds[0].Revents), nil
}
