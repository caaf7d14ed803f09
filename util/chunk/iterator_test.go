// Copyright 2022 CascadeDB, Inc.
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

package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIterator4Chunk(t *testing.T) {
	chk := New(testFields(), 4, 32)
	fillTestChunk(chk, 5)
	it := NewIterator4Chunk(chk)
	require.Equal(t, 5, it.Len())

	var got []int64
	for row := it.Begin(); row != it.End(); row = it.Next() {
		require.Equal(t, len(got), row.Idx())
		got = append(got, row.GetInt64(0))
	}
	require.Equal(t, []int64{0, 1, 2, 3, 4}, got)
	require.Equal(t, it.End(), it.Next())

	it.Begin()
	require.Equal(t, int64(0), it.Current().GetInt64(0))
	it.ReachEnd()
	require.Equal(t, it.End(), it.Current())
}

func TestIterator4ChunkEmpty(t *testing.T) {
	it := NewIterator4Chunk(New(testFields(), 4, 32))
	require.Equal(t, it.End(), it.Begin())
	require.Equal(t, 0, it.Len())
}
