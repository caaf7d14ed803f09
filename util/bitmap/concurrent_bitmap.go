// Copyright 2023 CascadeDB, Inc.
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

package bitmap

import (
	"sync/atomic"
	"unsafe"
)

const (
	segmentWidth      = 32
	segmentWidthPower = 5
	bitMask           = 0x80000000
)

// ConcurrentBitmap is a static-sized bitmap whose Set operation is lock-free
// and idempotent, so multiple goroutines may mark rows matched concurrently.
type ConcurrentBitmap struct {
	segments []uint32
	bitLen   int
}

// NewConcurrentBitmap initializes a ConcurrentBitmap which can store
// bitLen of bits.
func NewConcurrentBitmap(bitLen int) *ConcurrentBitmap {
	words := (bitLen + segmentWidth - 1) >> segmentWidthPower
	return &ConcurrentBitmap{
		segments: make([]uint32, words),
		bitLen:   bitLen,
	}
}

// Set sets the bit on bitIndex to be 1 (bitIndex starts from 0).
func (b *ConcurrentBitmap) Set(bitIndex int) {
	segment := &b.segments[bitIndex>>segmentWidthPower]
	mask := uint32(bitMask >> uint(bitIndex%segmentWidth))
	for {
		old := atomic.LoadUint32(segment)
		if old&mask != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(segment, old, old|mask) {
			return
		}
	}
}

// UnsafeSet sets the bit without synchronization, only safe before the bitmap
// is shared between goroutines.
func (b *ConcurrentBitmap) UnsafeSet(bitIndex int) {
	b.segments[bitIndex>>segmentWidthPower] |= uint32(bitMask >> uint(bitIndex%segmentWidth))
}

// UnsafeIsSet returns if a bit is set (bitIndex starts from 0).
// It is not thread-safe since it does not use atomic load.
func (b *ConcurrentBitmap) UnsafeIsSet(bitIndex int) bool {
	mask := uint32(bitMask >> uint(bitIndex%segmentWidth))
	return b.segments[bitIndex>>segmentWidthPower]&mask != 0
}

// BitLen returns the number of bits the bitmap can hold.
func (b *ConcurrentBitmap) BitLen() int {
	return b.bitLen
}

// BytesConsumed returns size of this bitmap in bytes.
func (b *ConcurrentBitmap) BytesConsumed() int64 {
	return int64(unsafe.Sizeof(*b)) + int64(segmentWidth/8*cap(b.segments))
}
