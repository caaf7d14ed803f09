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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConcurrentBitmapSet(t *testing.T) {
	bm := NewConcurrentBitmap(100)
	require.Equal(t, 100, bm.BitLen())
	for i := 0; i < 100; i++ {
		require.False(t, bm.UnsafeIsSet(i))
	}

	bm.Set(0)
	bm.Set(31)
	bm.Set(32)
	bm.Set(99)
	for i := 0; i < 100; i++ {
		want := i == 0 || i == 31 || i == 32 || i == 99
		require.Equal(t, want, bm.UnsafeIsSet(i), "bit %d", i)
	}

	// Set is idempotent.
	bm.Set(31)
	require.True(t, bm.UnsafeIsSet(31))
}

func TestConcurrentBitmapConcurrentSet(t *testing.T) {
	const bitLen = 1024
	bm := NewConcurrentBitmap(bitLen)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := offset; i < bitLen; i += 8 {
				bm.Set(i)
			}
		}(g)
	}
	wg.Wait()
	for i := 0; i < bitLen; i++ {
		require.True(t, bm.UnsafeIsSet(i), "bit %d", i)
	}
}

func TestConcurrentBitmapUnsafeSet(t *testing.T) {
	bm := NewConcurrentBitmap(64)
	bm.UnsafeSet(1)
	bm.UnsafeSet(63)
	require.True(t, bm.UnsafeIsSet(1))
	require.True(t, bm.UnsafeIsSet(63))
	require.False(t, bm.UnsafeIsSet(0))
	require.Greater(t, bm.BytesConsumed(), int64(0))
}
