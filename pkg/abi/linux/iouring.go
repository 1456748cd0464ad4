// Copyright 2025 The Keelson Authors.
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

package linux

import (
	"unsafe"
)

// Constants for io_uring_setup(2), from include/uapi/linux/io_uring.h.
const (
	IORING_SETUP_IOPOLL    = 1 << 0 // io_context is polled
	IORING_SETUP_SQPOLL    = 1 << 1 // SQ poll thread
	IORING_SETUP_SQ_AFF    = 1 << 2 // sq_thread_cpu is valid
	IORING_SETUP_CQSIZE    = 1 << 3 // app defines CQ size
	IORING_SETUP_CLAMP     = 1 << 4 // clamp SQ/CQ ring sizes
	IORING_SETUP_ATTACH_WQ = 1 << 5 // attach to existing wq
)

// Magic mmap offsets of the shared ring regions, from
// include/uapi/linux/io_uring.h.
const (
	IORING_OFF_SQ_RING = 0
	IORING_OFF_CQ_RING = 0x8000000
	IORING_OFF_SQES    = 0x10000000
)

// Submission queue entry flags (io_uring_sqe.flags), from
// include/uapi/linux/io_uring.h.
const (
	IOSQE_FIXED_FILE    = 1 << 0 // use fixed fileset
	IOSQE_IO_DRAIN      = 1 << 1 // issue after inflight IO
	IOSQE_IO_LINK       = 1 << 2 // links next sqe
	IOSQE_IO_HARDLINK   = 1 << 3 // like LINK, but stronger
	IOSQE_ASYNC         = 1 << 4 // always go async
	IOSQE_BUFFER_SELECT = 1 << 5 // select buffer from sqe.BufIndex
)

// Submission queue operation codes (io_uring_sqe.opcode), from
// include/uapi/linux/io_uring.h.
const (
	IORING_OP_NOP             = 0
	IORING_OP_READV           = 1
	IORING_OP_WRITEV          = 2
	IORING_OP_FSYNC           = 3
	IORING_OP_READ_FIXED      = 4
	IORING_OP_WRITE_FIXED     = 5
	IORING_OP_POLL_ADD        = 6
	IORING_OP_POLL_REMOVE     = 7
	IORING_OP_SYNC_FILE_RANGE = 8
	IORING_OP_SENDMSG         = 9
	IORING_OP_RECVMSG         = 10
	IORING_OP_TIMEOUT         = 11
	IORING_OP_TIMEOUT_REMOVE  = 12
	IORING_OP_ACCEPT          = 13
	IORING_OP_ASYNC_CANCEL    = 14
	IORING_OP_LINK_TIMEOUT    = 15
	IORING_OP_CONNECT         = 16
	IORING_OP_FALLOCATE       = 17
	IORING_OP_OPENAT          = 18
	IORING_OP_CLOSE           = 19
	IORING_OP_FILES_UPDATE    = 20
	IORING_OP_STATX           = 21
	IORING_OP_READ            = 22
	IORING_OP_WRITE           = 23
)

// SQ ring flags (*IOSqRingOffsets.Flags), written by the kernel, from
// include/uapi/linux/io_uring.h.
const (
	IORING_SQ_NEED_WAKEUP = 1 << 0 // needs io_uring_enter wakeup
	IORING_SQ_CQ_OVERFLOW = 1 << 1 // CQ ring is overflown
)

// Constants for io_uring_enter(2), from include/uapi/linux/io_uring.h.
const (
	IORING_ENTER_GETEVENTS = 1 << 0
	IORING_ENTER_SQ_WAKEUP = 1 << 1
)

// Constants for io_uring_register(2) opcodes, from
// include/uapi/linux/io_uring.h.
const (
	IORING_REGISTER_BUFFERS       = 0
	IORING_UNREGISTER_BUFFERS     = 1
	IORING_REGISTER_FILES         = 2
	IORING_UNREGISTER_FILES       = 3
	IORING_REGISTER_EVENTFD       = 4
	IORING_UNREGISTER_EVENTFD     = 5
	IORING_REGISTER_FILES_UPDATE  = 6
	IORING_REGISTER_EVENTFD_ASYNC = 7
	IORING_REGISTER_PROBE         = 8
)

// IOUringParams feature flags (IOUringParams.Features), from
// include/uapi/linux/io_uring.h.
const (
	IORING_FEAT_SINGLE_MMAP   = 1 << 0
	IORING_FEAT_NODROP        = 1 << 1
	IORING_FEAT_SUBMIT_STABLE = 1 << 2
	IORING_FEAT_RW_CUR_POS    = 1 << 3
)

// IOUringSqe is struct io_uring_sqe, from include/uapi/linux/io_uring.h.
// One submission queue entry fully describes an asynchronous operation;
// the kernel copies the entry out of the shared array during
// io_uring_enter(2), so entries are reusable once that call returns.
type IOUringSqe struct {
	Opcode      uint8  // IORING_OP_*
	Flags       uint8  // IOSQE_*
	IoPrio      uint16 // ioprio for the request
	Fd          int32  // file descriptor to do IO on
	Off         uint64 // offset into file, or addr2 for some ops
	Addr        uint64 // buffer or iovec base, or off for splice
	Len         uint32 // buffer size or number of iovecs
	OpFlags     uint32 // opcode-specific flags (rw_flags, poll_events, ...)
	UserData    uint64 // passed back verbatim at completion time
	BufIndex    uint16 // index into fixed buffers, or buffer group
	Personality uint16 // credentials id
	SpliceFdIn  int32  // fd to splice from
	_           [2]uint64
}

// IOUringCqe is struct io_uring_cqe, from include/uapi/linux/io_uring.h.
type IOUringCqe struct {
	UserData uint64 // IOUringSqe.UserData of the completed submission
	Res      int32  // result code, -errno on failure
	Flags    uint32
}

// IOSqRingOffsets is struct io_sqring_offsets, from
// include/uapi/linux/io_uring.h. Each field holds a byte offset into the SQ
// ring mapping.
type IOSqRingOffsets struct {
	Head        uint32 // ring consumer index, owned by the kernel
	Tail        uint32 // ring producer index, owned by the application
	RingMask    uint32 // constant, entries - 1
	RingEntries uint32 // constant ring size
	Flags       uint32 // IORING_SQ_* flags, written by the kernel
	Dropped     uint32 // count of invalid submissions
	Array       uint32 // sqe index array
	Resv1       uint32
	Resv2       uint64
}

// IOCqRingOffsets is struct io_cqring_offsets, from
// include/uapi/linux/io_uring.h. Each field holds a byte offset into the CQ
// ring mapping.
type IOCqRingOffsets struct {
	Head        uint32 // ring consumer index, owned by the application
	Tail        uint32 // ring producer index, owned by the kernel
	RingMask    uint32 // constant, entries - 1
	RingEntries uint32 // constant ring size
	Overflow    uint32 // count of completions lost to a full ring
	Cqes        uint32 // completion entry array
	Flags       uint32
	Resv1       uint32
	Resv2       uint64
}

// IOUringParams is struct io_uring_params, from
// include/uapi/linux/io_uring.h. The application fills in Flags and the
// optional sizing fields before io_uring_setup(2); the kernel fills in
// everything else.
type IOUringParams struct {
	SqEntries    uint32
	CqEntries    uint32
	Flags        uint32
	SqThreadCPU  uint32
	SqThreadIdle uint32
	Features     uint32
	WqFd         uint32
	Resv         [3]uint32
	SqOff        IOSqRingOffsets
	CqOff        IOCqRingOffsets
}

// Sizes of the structs above as the kernel defines them. Ring geometry is
// computed from these, and the structs are overlaid onto memory shared with
// the kernel, so the Go layouts must match the C layouts bit for bit.
const (
	SizeOfIOUringSqe    = 64
	SizeOfIOUringCqe    = 16
	SizeOfIOUringParams = 120
	SizeOfSqArrayEntry  = 4 // each SQ index array slot is a uint32
)

// Fail the build if any layout drifts from the kernel's.
var (
	_ [SizeOfIOUringSqe - unsafe.Sizeof(IOUringSqe{})]byte
	_ [unsafe.Sizeof(IOUringSqe{}) - SizeOfIOUringSqe]byte
	_ [SizeOfIOUringCqe - unsafe.Sizeof(IOUringCqe{})]byte
	_ [unsafe.Sizeof(IOUringCqe{}) - SizeOfIOUringCqe]byte
	_ [SizeOfIOUringParams - unsafe.Sizeof(IOUringParams{})]byte
	_ [unsafe.Sizeof(IOUringParams{}) - SizeOfIOUringParams]byte
)
