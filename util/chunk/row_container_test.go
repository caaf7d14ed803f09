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

func TestRowContainerInMemory(t *testing.T) {
	fields := testFields()
	rc := NewRowContainer(fields, 4)
	defer func() { require.NoError(t, rc.Close()) }()

	chk := New(fields, 4, 4)
	fillTestChunk(chk, 4)
	require.NoError(t, rc.Add(chk))
	require.False(t, rc.AlreadySpilledSafeForTest())
	require.Equal(t, 4, rc.NumRow())
	require.Equal(t, 1, rc.NumChunks())
	require.Equal(t, 4, rc.NumRowsOfChunk(0))

	row, err := rc.GetRow(RowPtr{ChkIdx: 0, RowIdx: 2})
	require.NoError(t, err)
	require.Equal(t, int64(2), row.GetInt64(0))
}

func TestRowContainerSpillEquivalence(t *testing.T) {
	fields := testFields()
	rc := NewRowContainer(fields, 4)
	defer func() { require.NoError(t, rc.Close()) }()

	chk := New(fields, 4, 4)
	fillTestChunk(chk, 4)
	require.NoError(t, rc.Add(chk))

	before := make([]Row, 0, 4)
	for i := 0; i < 4; i++ {
		row, err := rc.GetRow(RowPtr{ChkIdx: 0, RowIdx: uint32(i)})
		require.NoError(t, err)
		before = append(before, row)
	}

	rc.SpillToDisk()
	require.True(t, rc.AlreadySpilledSafeForTest())
	require.NoError(t, rc.SpillError())
	require.Equal(t, 4, rc.NumRow())

	// Reads go through disk now and must observe the same values.
	for i := 0; i < 4; i++ {
		row, err := rc.GetRow(RowPtr{ChkIdx: 0, RowIdx: uint32(i)})
		require.NoError(t, err)
		require.Equal(t, before[i].GetInt64(0), row.GetInt64(0))
		require.Equal(t, before[i].IsNull(1), row.IsNull(1))
		require.Equal(t, before[i].GetFloat64(2), row.GetFloat64(2))
	}

	_, err := rc.AppendRow(before[0])
	require.Error(t, err)
}

func TestSpillDiskActionTrigger(t *testing.T) {
	fields := testFields()
	rc := NewRowContainer(fields, 32)
	defer func() { require.NoError(t, rc.Close()) }()

	for i := 0; i < 4; i++ {
		chk := New(fields, 32, 32)
		fillTestChunk(chk, 32)
		require.NoError(t, rc.Add(chk))
	}

	action := rc.ActionSpillForTest()
	rc.GetMemTracker().SetBytesLimit(1)
	rc.GetMemTracker().FallbackOldAndSetNewAction(action)
	rc.GetMemTracker().Consume(1)
	action.WaitForTest()
	require.True(t, rc.AlreadySpilledSafeForTest())
	require.NoError(t, rc.SpillError())
	require.Equal(t, 128, rc.NumRow())
}
