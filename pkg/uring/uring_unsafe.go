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

package uring

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"keelson.dev/keelson/pkg/abi/linux"
	"keelson.dev/keelson/pkg/atomicbitops"
)

// sigsetSize is _NSIG/8. io_uring_enter validates the sigset size argument
// whenever a sigset is passed; passing the real size unconditionally is
// harmless and matches liburing.
const sigsetSize = 64 / 8

func ioUringSetup(entries uint32, params *linux.IOUringParams) (int, error) {
	fd, _, errno := unix.RawSyscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(params)), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(fd), nil
}

// ioUringEnter may block in the kernel when minComplete is nonzero, so it
// must not use RawSyscall.
func (r *Ring) ioUringEnter(toSubmit, minComplete, flags uint32) (uint32, error) {
	n, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0 /* sig */, sigsetSize)
	if errno != 0 {
		return 0, errno
	}
	return uint32(n), nil
}

func ioUringRegister(fd int32, opcode uint32, arg unsafe.Pointer, nrArgs uint32) error {
	_, _, errno := unix.RawSyscall6(unix.SYS_IO_URING_REGISTER, uintptr(fd), uintptr(opcode), uintptr(arg), uintptr(nrArgs), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (r *Ring) registerEventfd(efd int32) error {
	return ioUringRegister(r.fd, linux.IORING_REGISTER_EVENTFD, unsafe.Pointer(&efd), 1)
}

// checkRegion verifies that size bytes at byte offset off fit within
// region. The kernel reports the offsets and counts the sizes derive from,
// but nothing below may trust them enough to dereference past a mapping.
func checkRegion(region []byte, off uint32, size uint64, what string) error {
	if uint64(off)+size > uint64(len(region)) {
		return fmt.Errorf("%s at offset %d (%d bytes) exceeds %d-byte mapping: %w", what, off, size, len(region), unix.EINVAL)
	}
	return nil
}

// sharedUint32 returns a pointer to the uint32 at byte offset off of
// region, usable for the cross-kernel loads and stores of the queue
// protocol. atomicbitops.Uint32 is layout-identical to uint32, so the cast
// aliases the shared word itself.
func sharedUint32(region []byte, off uint32) *atomicbitops.Uint32 {
	return (*atomicbitops.Uint32)(unsafe.Pointer(&region[off]))
}

// initViews carves the typed queue views out of the raw mappings using the
// offsets the kernel reported in params. Every offset is bounds-checked
// against its mapping before any pointer is formed.
func (r *Ring) initViews() error {
	p := &r.params

	for _, f := range []struct {
		off  uint32
		what string
	}{
		{p.SqOff.Head, "sq head"},
		{p.SqOff.Tail, "sq tail"},
		{p.SqOff.RingMask, "sq ring mask"},
		{p.SqOff.RingEntries, "sq ring entries"},
		{p.SqOff.Flags, "sq flags"},
		{p.SqOff.Dropped, "sq dropped"},
	} {
		if err := checkRegion(r.sqRegion, f.off, 4, f.what); err != nil {
			return err
		}
	}
	if err := checkRegion(r.sqRegion, p.SqOff.Array, uint64(p.SqEntries)*linux.SizeOfSqArrayEntry, "sq index array"); err != nil {
		return err
	}
	if err := checkRegion(r.sqeRegion, 0, uint64(p.SqEntries)*linux.SizeOfIOUringSqe, "sqe array"); err != nil {
		return err
	}
	for _, f := range []struct {
		off  uint32
		what string
	}{
		{p.CqOff.Head, "cq head"},
		{p.CqOff.Tail, "cq tail"},
		{p.CqOff.RingMask, "cq ring mask"},
		{p.CqOff.RingEntries, "cq ring entries"},
		{p.CqOff.Overflow, "cq overflow"},
	} {
		if err := checkRegion(r.cqRegion, f.off, 4, f.what); err != nil {
			return err
		}
	}
	if err := checkRegion(r.cqRegion, p.CqOff.Cqes, uint64(p.CqEntries)*linux.SizeOfIOUringCqe, "cqe array"); err != nil {
		return err
	}

	// Masks and entry counts are immutable after setup; read them out by
	// value rather than holding pointers into the mappings.
	r.sq = sq{
		head:    sharedUint32(r.sqRegion, p.SqOff.Head),
		tail:    sharedUint32(r.sqRegion, p.SqOff.Tail),
		flags:   sharedUint32(r.sqRegion, p.SqOff.Flags),
		dropped: sharedUint32(r.sqRegion, p.SqOff.Dropped),
		array:   unsafe.Slice(sharedUint32(r.sqRegion, p.SqOff.Array), p.SqEntries),
		sqes:    unsafe.Slice((*linux.IOUringSqe)(unsafe.Pointer(&r.sqeRegion[0])), p.SqEntries),
		mask:    sharedUint32(r.sqRegion, p.SqOff.RingMask).RacyLoad(),
		entries: sharedUint32(r.sqRegion, p.SqOff.RingEntries).RacyLoad(),
	}
	r.cq = cq{
		head:     sharedUint32(r.cqRegion, p.CqOff.Head),
		tail:     sharedUint32(r.cqRegion, p.CqOff.Tail),
		overflow: sharedUint32(r.cqRegion, p.CqOff.Overflow),
		cqes:     unsafe.Slice((*linux.IOUringCqe)(unsafe.Pointer(&r.cqRegion[p.CqOff.Cqes])), p.CqEntries),
		mask:     sharedUint32(r.cqRegion, p.CqOff.RingMask).RacyLoad(),
		entries:  sharedUint32(r.cqRegion, p.CqOff.RingEntries).RacyLoad(),
	}

	if r.sq.entries == 0 || r.sq.mask != r.sq.entries-1 {
		return fmt.Errorf("sq geometry entries=%d mask=%#x is not a power-of-two ring: %w", r.sq.entries, r.sq.mask, unix.EINVAL)
	}
	if r.cq.entries == 0 || r.cq.mask != r.cq.entries-1 {
		return fmt.Errorf("cq geometry entries=%d mask=%#x is not a power-of-two ring: %w", r.cq.entries, r.cq.mask, unix.EINVAL)
	}
	return nil
}
