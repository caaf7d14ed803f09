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

package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListInDiskRoundTrip(t *testing.T) {
	fields := testFields()
	l := NewListInDisk(fields)
	defer func() { require.NoError(t, l.Close()) }()

	chk1 := New(fields, 8, 8)
	fillTestChunk(chk1, 8)
	chk2 := New(fields, 8, 8)
	fillTestChunk(chk2, 3)
	require.NoError(t, l.Add(chk1))
	require.NoError(t, l.Add(chk2))

	require.Equal(t, 2, l.NumChunks())
	require.Equal(t, 11, l.Len())
	require.Equal(t, 8, l.NumRowsOfChunk(0))
	require.Equal(t, 3, l.NumRowsOfChunk(1))
	require.Greater(t, l.GetDiskTracker().BytesConsumed(), int64(0))

	got, err := l.GetChunk(0)
	require.NoError(t, err)
	require.Equal(t, 8, got.NumRows())
	for i := 0; i < 8; i++ {
		require.Equal(t, chk1.GetRow(i).GetInt64(0), got.GetRow(i).GetInt64(0))
		require.Equal(t, chk1.GetRow(i).IsNull(1), got.GetRow(i).IsNull(1))
		require.Equal(t, chk1.GetRow(i).GetFloat64(2), got.GetRow(i).GetFloat64(2))
	}

	row, err := l.GetRow(RowPtr{ChkIdx: 1, RowIdx: 2})
	require.NoError(t, err)
	require.Equal(t, int64(2), row.GetInt64(0))
	require.Equal(t, "val", row.GetString(1))
}

func TestListInDiskRejectsEmptyChunk(t *testing.T) {
	l := NewListInDisk(testFields())
	defer func() { require.NoError(t, l.Close()) }()
	require.Error(t, l.Add(New(testFields(), 8, 8)))
}

func TestListInDiskDetectsCorruption(t *testing.T) {
	fields := testFields()
	l := NewListInDisk(fields)
	defer func() { require.NoError(t, l.Close()) }()

	chk := New(fields, 4, 4)
	fillTestChunk(chk, 4)
	require.NoError(t, l.Add(chk))
	require.NoError(t, l.flush())

	// Flip one payload byte on disk, the checksum must catch it.
	_, err := l.disk.WriteAt([]byte{0xff}, listInDiskHeaderSize+1)
	require.NoError(t, err)
	_, err = l.GetChunk(0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
}

func TestListInDiskDetectsRowCountMismatch(t *testing.T) {
	fields := testFields()
	l := NewListInDisk(fields)
	defer func() { require.NoError(t, l.Close()) }()

	chk := New(fields, 4, 4)
	fillTestChunk(chk, 4)
	require.NoError(t, l.Add(chk))

	// Tamper with the recorded row count, the header check must catch it.
	l.numRowsOfEachChunk[0] = 3
	_, err := l.GetChunk(0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "row count mismatch")
}
