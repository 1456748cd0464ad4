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

// Package bitmap provides a set of small non-negative integers, packed one
// bit per element. Its primary use is tracking which slots of a fixed-size
// table are busy.
package bitmap

import (
	"fmt"
	"math/bits"
)

// Bitmap is a set of integers in [0, Size). The zero value is an empty set
// of size zero.
type Bitmap struct {
	// numOnes counts the set bits across all words.
	numOnes uint32

	// words holds the bits, 64 per entry, lowest numbered first.
	words []uint64
}

// New returns an empty Bitmap able to hold integers in [0, size).
func New(size uint32) Bitmap {
	return Bitmap{words: make([]uint64, (size+63)/64)}
}

// Size returns the number of integers b can hold.
func (b *Bitmap) Size() int {
	return len(b.words) * 64
}

// IsEmpty returns true if no bit of b is set.
func (b *Bitmap) IsEmpty() bool {
	return b.numOnes == 0
}

// NumOnes returns the number of set bits.
func (b *Bitmap) NumOnes() uint32 {
	return b.numOnes
}

// Add sets bit i, growing b as needed.
func (b *Bitmap) Add(i uint32) {
	word, mask := i/64, uint64(1)<<(i%64)
	if n := int(word) - len(b.words) + 1; n > 0 {
		b.words = append(b.words, make([]uint64, n)...)
	}
	if b.words[word]&mask == 0 {
		b.words[word] |= mask
		b.numOnes++
	}
}

// Remove clears bit i.
//
// Preconditions: i < b.Size().
func (b *Bitmap) Remove(i uint32) {
	word, mask := i/64, uint64(1)<<(i%64)
	if b.words[word]&mask != 0 {
		b.words[word] &^= mask
		b.numOnes--
	}
}

// Contains returns true if bit i is set.
//
// Preconditions: i < b.Size().
func (b *Bitmap) Contains(i uint32) bool {
	return b.words[i/64]&(uint64(1)<<(i%64)) != 0
}

// FirstZero returns the position of the first clear bit at or above start.
func (b *Bitmap) FirstZero(start uint32) (uint32, error) {
	i, bit := int(start/64), start%64
	if i >= len(b.words) {
		return 0, fmt.Errorf("start %d is beyond the bitmap's size %d", start, b.Size())
	}
	w := b.words[i] | (uint64(1)<<bit - 1)
	for {
		if w != ^uint64(0) {
			return uint32(i*64 + bits.TrailingZeros64(^w)), nil
		}
		i++
		if i == len(b.words) {
			return 0, fmt.Errorf("no clear bit at or above %d", start)
		}
		w = b.words[i]
	}
}

// FirstOne returns the position of the first set bit at or above start.
func (b *Bitmap) FirstOne(start uint32) (uint32, error) {
	i, bit := int(start/64), start%64
	if i >= len(b.words) {
		return 0, fmt.Errorf("start %d is beyond the bitmap's size %d", start, b.Size())
	}
	w := b.words[i] &^ (uint64(1)<<bit - 1)
	for {
		if w != 0 {
			return uint32(i*64 + bits.TrailingZeros64(w)), nil
		}
		i++
		if i == len(b.words) {
			return 0, fmt.Errorf("no set bit at or above %d", start)
		}
		w = b.words[i]
	}
}
