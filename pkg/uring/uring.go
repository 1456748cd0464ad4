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

// Package uring is a user-space driver for Linux's io_uring facility, as
// described in io_uring(7).
//
// A Ring wraps one kernel io_uring instance: a submission queue and a
// completion queue laid out in memory shared with the kernel. Each side of
// each queue has a single owner. The kernel owns the submission queue head
// and the completion queue tail; this driver owns the submission queue tail
// and the completion queue head. An owner publishes its index with a release
// store, and the other side observes it with an acquire load; no locks are
// involved.
//
// Descriptors move through three stages: GetSQE hands out a free slot,
// Submit publishes filled slots to the kernel, and GetCompletions harvests
// results. GetSQE returning nil means every slot is filled and unsubmitted;
// that is backpressure, not an error, and Submit makes the slots reusable.
package uring

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"keelson.dev/keelson/pkg/abi/linux"
	"keelson.dev/keelson/pkg/atomicbitops"
	"keelson.dev/keelson/pkg/cleanup"
	"keelson.dev/keelson/pkg/eventfd"
	"keelson.dev/keelson/pkg/log"
	"keelson.dev/keelson/pkg/memutil"
)

// maxEntries mirrors the kernel's IORING_MAX_ENTRIES.
const maxEntries = 32768

// Config configures a Ring.
type Config struct {
	// Entries is the requested submission queue depth. The kernel rounds
	// it up to the next power of two and reports the result back; the
	// rounded value is available from SQEntries after New.
	Entries uint32

	// CQEntries optionally requests a completion queue deeper than the
	// kernel's default of twice the submission queue. Zero means default.
	CQEntries uint32

	// Flags are IORING_SETUP_* flags. Kernel-side submission polling
	// (IORING_SETUP_SQPOLL and IORING_SETUP_SQ_AFF) is rejected: it
	// transfers ownership of the submission queue head to a kernel
	// thread, which this driver's index accounting does not support.
	Flags uint32
}

func (cfg Config) validate() error {
	if cfg.Entries == 0 || cfg.Entries > maxEntries {
		return fmt.Errorf("submission queue depth %d outside [1, %d]: %w", cfg.Entries, maxEntries, unix.EINVAL)
	}
	if cfg.CQEntries > 2*maxEntries {
		return fmt.Errorf("completion queue depth %d outside [0, %d]: %w", cfg.CQEntries, 2*maxEntries, unix.EINVAL)
	}
	if cfg.Flags&(linux.IORING_SETUP_SQPOLL|linux.IORING_SETUP_SQ_AFF) != 0 {
		return fmt.Errorf("kernel-side submission polling is not supported: %w", unix.EINVAL)
	}
	return nil
}

// sq is the driver's view of the shared submission queue. head is written
// by the kernel; tail, the index array and the descriptor array are written
// by this side. mask and entries are constants after setup.
type sq struct {
	head    *atomicbitops.Uint32
	tail    *atomicbitops.Uint32
	flags   *atomicbitops.Uint32
	dropped *atomicbitops.Uint32
	array   []atomicbitops.Uint32
	sqes    []linux.IOUringSqe
	mask    uint32
	entries uint32
}

// cq is the driver's view of the shared completion queue. tail is written
// by the kernel; head is written by this side.
type cq struct {
	head     *atomicbitops.Uint32
	tail     *atomicbitops.Uint32
	overflow *atomicbitops.Uint32
	cqes     []linux.IOUringCqe
	mask     uint32
	entries  uint32
}

// Ring is a single io_uring instance shared with the kernel.
//
// A Ring belongs to one execution context. Submit and the harvest methods
// synchronize with the kernel through the shared indices, but no method on
// Ring may be called concurrently with another.
type Ring struct {
	fd     int32
	params linux.IOUringParams

	// The raw mappings, retained for teardown. Everything in sq and cq
	// points into one of these.
	sqRegion  []byte
	cqRegion  []byte
	sqeRegion []byte

	sq sq
	cq cq

	// sqeHead and sqeTail delimit descriptors handed out by GetSQE and
	// not yet published by Submit. Free-running; distance never exceeds
	// sq.entries.
	sqeHead uint32
	sqeTail uint32

	// pending is set when io_uring_enter fails after descriptors were
	// already published. The only transition out of it is a successful
	// re-drive of the published range; the indices are never rewound.
	pending bool

	registeredEventfd bool
	closed            bool

	// enter issues io_uring_enter(2). Overridable by tests.
	enter func(toSubmit, minComplete, flags uint32) (uint32, error)

	// enterLog throttles noise from repeated enter failures.
	enterLog log.Logger
}

// New creates an io_uring instance and maps its shared queues.
//
// Setup is all or nothing: on any failure every mapping made so far is
// unmapped and the ring descriptor is closed before the error is returned.
func New(cfg Config) (*Ring, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	params := linux.IOUringParams{Flags: cfg.Flags}
	if cfg.CQEntries != 0 {
		params.Flags |= linux.IORING_SETUP_CQSIZE
		params.CqEntries = cfg.CQEntries
	}
	fd, err := ioUringSetup(cfg.Entries, &params)
	if err != nil {
		return nil, fmt.Errorf("io_uring_setup: %w", err)
	}
	cu := cleanup.Make(func() { unix.Close(fd) })
	defer cu.Clean()

	mapRegion := func(size uint64, magic uintptr) ([]byte, error) {
		region, err := memutil.MapSlice(0, uintptr(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE, uintptr(fd), magic)
		if err != nil {
			return nil, err
		}
		cu.Add(func() { memutil.UnmapSlice(region) })
		return region, nil
	}

	sqSize := uint64(params.SqOff.Array) + uint64(params.SqEntries)*linux.SizeOfSqArrayEntry
	sqRegion, err := mapRegion(sqSize, linux.IORING_OFF_SQ_RING)
	if err != nil {
		return nil, fmt.Errorf("mmap sq ring: %w", err)
	}
	sqeRegion, err := mapRegion(uint64(params.SqEntries)*linux.SizeOfIOUringSqe, linux.IORING_OFF_SQES)
	if err != nil {
		return nil, fmt.Errorf("mmap sqe array: %w", err)
	}
	cqSize := uint64(params.CqOff.Cqes) + uint64(params.CqEntries)*linux.SizeOfIOUringCqe
	cqRegion, err := mapRegion(cqSize, linux.IORING_OFF_CQ_RING)
	if err != nil {
		return nil, fmt.Errorf("mmap cq ring: %w", err)
	}

	r := &Ring{
		fd:        int32(fd),
		params:    params,
		sqRegion:  sqRegion,
		cqRegion:  cqRegion,
		sqeRegion: sqeRegion,
	}
	if err := r.initViews(); err != nil {
		return nil, err
	}
	r.enter = r.ioUringEnter
	r.enterLog = log.BasicRateLimitedLogger(time.Second)
	cu.Release()

	log.Debugf("io_uring created: fd=%d sq_entries=%d cq_entries=%d features=%#x", fd, params.SqEntries, params.CqEntries, params.Features)
	return r, nil
}

// GetSQE returns the next free submission descriptor, zeroed, or nil if
// every descriptor is filled and unsubmitted. The returned descriptor is
// valid until the Submit call that publishes it returns.
func (r *Ring) GetSQE() *linux.IOUringSqe {
	next := r.sqeTail + 1
	// Indices are free-running; the subtraction is wrap-safe.
	if next-r.sqeHead > r.sq.entries {
		return nil
	}
	sqe := &r.sq.sqes[r.sqeTail&r.sq.mask]
	r.sqeTail = next
	*sqe = linux.IOUringSqe{}
	return sqe
}

// Submit publishes every descriptor handed out by GetSQE since the last
// call and notifies the kernel. It returns the number of descriptors
// submitted by this call, which is zero when there was nothing to do.
//
// If the kernel notification fails, the descriptors stay published: the
// error is returned, and the next call re-drives exactly the published
// range before accepting new work. Callers retry Submit on SystemError-
// style failures (EBUSY, EINTR, EAGAIN) and treat the retry succeeding as
// the original submission succeeding.
func (r *Ring) Submit() (uint32, error) {
	return r.submit(0)
}

// SubmitAndWait is Submit plus a kernel-side wait for at least minComplete
// completions to become harvestable.
func (r *Ring) SubmitAndWait(minComplete uint32) (uint32, error) {
	return r.submit(minComplete)
}

func (r *Ring) submit(minComplete uint32) (uint32, error) {
	tail := r.sq.tail.RacyLoad() // user-owned; the kernel never writes it
	if r.pending {
		submitted := tail - r.sq.head.Load()
		if submitted != 0 {
			// Finish submitting entries that remain in the
			// kernel-visible queue from a failed enter before
			// accepting new ones; anything else would complicate
			// index recovery.
			if err := r.doEnter(submitted, minComplete); err != nil {
				return 0, err
			}
			return submitted, nil
		}
		// The kernel consumed the range after all.
		r.pending = false
	}

	tailNext := tail
	mask := r.sq.mask
	// GetSQE bounds sqeTail-sqeHead by sq.entries, so the kernel-owned
	// head need not be consulted here.
	for r.sqeHead != r.sqeTail {
		// Plain stores: the kernel reads array entries only after
		// acquiring the tail published below.
		r.sq.array[tailNext&mask].RacyStore(r.sqeHead & mask)
		r.sqeHead++
		tailNext++
	}
	submitted := tailNext - tail
	if submitted == 0 && minComplete == 0 {
		return 0, nil
	}
	if submitted != 0 {
		// Publish the tail only after the descriptor and index writes
		// so the kernel's acquire observes a consistent queue.
		r.sq.tail.Store(tailNext)
	}
	if err := r.doEnter(submitted, minComplete); err != nil {
		return 0, err
	}
	return submitted, nil
}

func (r *Ring) doEnter(toSubmit, minComplete uint32) error {
	_, err := r.enter(toSubmit, minComplete, linux.IORING_ENTER_GETEVENTS)
	if err != nil {
		if toSubmit != 0 {
			r.pending = true
			r.enterLog.Warningf("io_uring_enter: %d descriptors published but not accepted, will re-drive: %v", toSubmit, err)
		}
		return fmt.Errorf("io_uring_enter: %w", err)
	}
	r.pending = false
	return nil
}

// GetCompletion returns the next harvestable completion, if any. The entry
// is copied out and its slot released to the kernel before returning.
func (r *Ring) GetCompletion() (linux.IOUringCqe, bool) {
	head := r.cq.head.RacyLoad() // user-owned
	if head == r.cq.tail.Load() {
		return linux.IOUringCqe{}, false
	}
	cqe := r.cq.cqes[head&r.cq.mask]
	r.cq.head.Store(head + 1)
	return cqe, true
}

// GetCompletions invokes fn for each harvestable completion, in the order
// the kernel published them, and returns the count. The pointer passed to
// fn is only valid during the call: the batch's slots are released back to
// the kernel afterwards in a single head update. An empty queue yields
// zero without error or blocking.
func (r *Ring) GetCompletions(fn func(*linux.IOUringCqe)) uint32 {
	head := r.cq.head.RacyLoad() // user-owned
	tail := r.cq.tail.Load()
	for i := head; i != tail; i++ {
		fn(&r.cq.cqes[i&r.cq.mask])
	}
	if n := tail - head; n != 0 {
		r.cq.head.Store(tail)
		return n
	}
	return 0
}

// WaitCompletions blocks until at least min completions have been
// harvested, invoking fn for each as in GetCompletions. Descriptors filled
// but not yet submitted are published first, so the wait cannot stall on
// work the kernel has never seen.
//
// Blocking is delegated to the kernel: the goroutine parks in
// io_uring_enter rather than spinning over the shared indices. Interrupted
// waits are retried; other failures return with the count harvested so far.
func (r *Ring) WaitCompletions(min uint32, fn func(*linux.IOUringCqe)) (uint32, error) {
	if _, err := r.Submit(); err != nil {
		return 0, err
	}
	var done uint32
	for {
		done += r.GetCompletions(fn)
		if done >= min {
			return done, nil
		}
		if _, err := r.enter(0, min-done, linux.IORING_ENTER_GETEVENTS); err != nil {
			if err == unix.EINTR {
				continue
			}
			return done, fmt.Errorf("io_uring_enter: %w", err)
		}
	}
}

// RegisterEventfd arranges for ev to be signaled whenever the kernel posts
// a completion to this ring, letting a poller sleep on the eventfd instead
// of the ring descriptor.
func (r *Ring) RegisterEventfd(ev eventfd.Eventfd) error {
	if r.registeredEventfd {
		return fmt.Errorf("ring already has a registered eventfd: %w", unix.EBUSY)
	}
	if err := r.registerEventfd(int32(ev.FD())); err != nil {
		return fmt.Errorf("io_uring_register(REGISTER_EVENTFD): %w", err)
	}
	r.registeredEventfd = true
	return nil
}

// UnregisterEventfd undoes RegisterEventfd.
func (r *Ring) UnregisterEventfd() error {
	if !r.registeredEventfd {
		return fmt.Errorf("ring has no registered eventfd: %w", unix.ENXIO)
	}
	if err := ioUringRegister(r.fd, linux.IORING_UNREGISTER_EVENTFD, nil, 0); err != nil {
		return fmt.Errorf("io_uring_register(UNREGISTER_EVENTFD): %w", err)
	}
	r.registeredEventfd = false
	return nil
}

// Close unmaps the shared queues and closes the ring descriptor, undoing
// exactly what New mapped. It is idempotent. In-flight operations are
// cancelled by the kernel when the descriptor closes.
func (r *Ring) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	log.Debugf("io_uring closing: fd=%d", r.fd)

	var firstErr error
	for _, region := range [][]byte{r.sqeRegion, r.sqRegion, r.cqRegion} {
		if err := memutil.UnmapSlice(region); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.sq = sq{}
	r.cq = cq{}
	if err := unix.Close(int(r.fd)); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// FD returns the ring file descriptor. Use with care, as this breaks the
// Ring abstraction.
func (r *Ring) FD() int {
	return int(r.fd)
}

// SQEntries returns the submission queue capacity negotiated at setup.
func (r *Ring) SQEntries() uint32 {
	return r.sq.entries
}

// CQEntries returns the completion queue capacity negotiated at setup.
func (r *Ring) CQEntries() uint32 {
	return r.cq.entries
}

// Unsubmitted returns the number of descriptors handed out by GetSQE that
// Submit has not yet published.
func (r *Ring) Unsubmitted() uint32 {
	return r.sqeTail - r.sqeHead
}

// Dropped returns the kernel's count of submissions skipped as invalid.
func (r *Ring) Dropped() uint32 {
	return r.sq.dropped.Load()
}

// Overflow returns the kernel's count of completions lost to a full
// completion queue.
func (r *Ring) Overflow() uint32 {
	return r.cq.overflow.Load()
}

// Features returns the IORING_FEAT_* bits negotiated at setup.
func (r *Ring) Features() uint32 {
	return r.params.Features
}
