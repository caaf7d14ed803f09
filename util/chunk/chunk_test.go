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

	"github.com/cascadedb/cascade/types"
)

func testFields() []*types.FieldType {
	return []*types.FieldType{
		types.NewFieldType(types.TypeLonglong),
		types.NewFieldType(types.TypeVarchar),
		types.NewFieldType(types.TypeDouble),
	}
}

func fillTestChunk(chk *Chunk, numRows int) {
	for i := 0; i < numRows; i++ {
		chk.AppendInt64(0, int64(i))
		if i%3 == 0 {
			chk.AppendNull(1)
		} else {
			chk.AppendString(1, "val")
		}
		chk.AppendFloat64(2, float64(i)/2)
	}
}

func TestAppendAndGet(t *testing.T) {
	chk := New(testFields(), 4, 32)
	fillTestChunk(chk, 10)
	require.Equal(t, 10, chk.NumRows())
	require.Equal(t, 3, chk.NumCols())

	row := chk.GetRow(4)
	require.Equal(t, int64(4), row.GetInt64(0))
	require.Equal(t, "val", row.GetString(1))
	require.Equal(t, 2.0, row.GetFloat64(2))
	require.True(t, chk.GetRow(3).IsNull(1))
	require.False(t, chk.GetRow(4).IsNull(1))
}

func TestAppendPartialRow(t *testing.T) {
	src := New(testFields(), 4, 32)
	fillTestChunk(src, 3)

	dst := New(append(testFields(), types.NewFieldType(types.TypeLonglong)), 4, 32)
	dst.AppendPartialRow(0, src.GetRow(1))
	dst.AppendInt64(3, 42)
	require.Equal(t, 1, dst.NumRows())
	require.Equal(t, int64(1), dst.GetRow(0).GetInt64(0))
	require.Equal(t, int64(42), dst.GetRow(0).GetInt64(3))
}

func TestAppendNullRow(t *testing.T) {
	chk := New(testFields(), 4, 32)
	chk.AppendNullRow(0, chk.NumCols())
	require.Equal(t, 1, chk.NumRows())
	for i := 0; i < chk.NumCols(); i++ {
		require.True(t, chk.GetRow(0).IsNull(i))
	}
}

func TestRequiredRows(t *testing.T) {
	chk := New(testFields(), 4, 32)
	require.Equal(t, 32, chk.RequiredRows())
	chk.SetRequiredRows(8, 32)
	require.Equal(t, 8, chk.RequiredRows())
	chk.SetRequiredRows(0, 32)
	require.Equal(t, 32, chk.RequiredRows())
	chk.SetRequiredRows(100, 32)
	require.Equal(t, 32, chk.RequiredRows())

	fillTestChunk(chk, 31)
	require.False(t, chk.IsFull())
	fillTestChunk(chk, 1)
	require.True(t, chk.IsFull())
}

func TestCopyConstruct(t *testing.T) {
	chk := New(testFields(), 4, 32)
	fillTestChunk(chk, 5)
	cp := chk.CopyConstruct()
	require.Equal(t, chk.NumRows(), cp.NumRows())
	chk.Reset()
	require.Equal(t, 5, cp.NumRows())
	require.Equal(t, int64(3), cp.GetRow(3).GetInt64(0))
}

func TestCopySelectedRows(t *testing.T) {
	src := New(testFields(), 4, 32)
	fillTestChunk(src, 6)
	selected := []bool{true, false, true, false, false, true}

	dst := New(testFields(), 4, 32)
	n := CopySelectedRows(dst, src, selected)
	require.Equal(t, 3, n)
	require.Equal(t, 3, dst.NumRows())
	require.Equal(t, int64(0), dst.GetRow(0).GetInt64(0))
	require.Equal(t, int64(2), dst.GetRow(1).GetInt64(0))
	require.Equal(t, int64(5), dst.GetRow(2).GetInt64(0))
	require.True(t, dst.GetRow(0).IsNull(1))
	require.Equal(t, "val", dst.GetRow(2).GetString(1))

	empty := New(testFields(), 4, 32)
	require.Equal(t, 0, CopySelectedRows(empty, src, make([]bool, 6)))
	require.Equal(t, 0, empty.NumRows())
}
