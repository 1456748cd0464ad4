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
	"unsafe"

	"golang.org/x/sys/unix"
)

// executeRequest performs r's operation as a blocking syscall and returns
// its completion. Interrupted syscalls are retried.
func executeRequest(r Request) Completion {
	var (
		n   int
		err error
	)
	for {
		switch r.Op {
		case OpRead:
			n, err = unix.Pread(int(r.FD), unsafe.Slice((*byte)(r.Buf), r.Len), r.Off)
		case OpWrite:
			n, err = unix.Pwrite(int(r.FD), unsafe.Slice((*byte)(r.Buf), r.Len), r.Off)
		case OpReadv:
			n, err = preadv(r.FD, uintptr(r.Buf), r.Len, r.Off)
		case OpWritev:
			n, err = pwritev(r.FD, uintptr(r.Buf), r.Len, r.Off)
		case OpPollAdd:
			n, err = pollOnce(r.FD, uint32(r.Len))
		default:
			err = unix.EINVAL
		}
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return Completion{ID: r.ID, Result: -int32(err.(unix.Errno))}
	}
	return Completion{ID: r.ID, Result: int32(n)}
}

// preadv and pwritev take the position split into two registers, low word
// first, matching the kernel's calling convention. On 64-bit hosts the low
// word is the whole offset and the high word is ignored.

func preadv(fd int32, iovs uintptr, iovcnt int, off int64) (int, error) {
	n, _, e := unix.Syscall6(unix.SYS_PREADV, uintptr(fd), iovs, uintptr(iovcnt), uintptr(off), uintptr(uint64(off)>>32), 0)
	if e != 0 {
		return 0, e
	}
	return int(n), nil
}

func pwritev(fd int32, iovs uintptr, iovcnt int, off int64) (int, error) {
	n, _, e := unix.Syscall6(unix.SYS_PWRITEV, uintptr(fd), iovs, uintptr(iovcnt), uintptr(off), uintptr(uint64(off)>>32), 0)
	if e != 0 {
		return 0, e
	}
	return int(n), nil
}
