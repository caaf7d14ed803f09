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

package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cascadedb/cascade/types"
	"github.com/cascadedb/cascade/util/chunk"
)

func probeTestBlock(ids []int64) *Block {
	tps := []*types.FieldType{types.NewFieldType(types.TypeLonglong)}
	chk := chunk.NewChunkWithCapacity(tps, len(ids))
	for _, id := range ids {
		chk.AppendInt64(0, id)
	}
	return NewBlock(chk, []string{"id"}, tps)
}

func TestResetBlockEmptyBatchFinishesImmediately(t *testing.T) {
	info := NewProbeProcessInfo(32)
	info.ResetBlock(probeTestBlock(nil), 0)
	require.True(t, info.Finished())

	info.ResetBlock(probeTestBlock([]int64{1}), 0)
	require.False(t, info.Finished())
	require.Equal(t, 0, info.StartRow())
}

func TestMinResultBlockSize(t *testing.T) {
	require.Equal(t, 3, NewProbeProcessInfo(5).minResultBlockSize)
	require.Equal(t, 3, NewProbeProcessInfo(6).minResultBlockSize)
	require.Equal(t, 1, NewProbeProcessInfo(1).minResultBlockSize)
}

func TestPrepareForProbeIdempotent(t *testing.T) {
	info := NewProbeProcessInfo(32)
	info.ResetBlock(probeTestBlock([]int64{1, 2}), 0)
	require.NoError(t, info.PrepareForProbe([]string{"id"}, "", InnerJoin, Any))
	firstKey := info.materializedKeys[0]
	require.NoError(t, info.PrepareForProbe([]string{"id"}, "", InnerJoin, Any))
	// The second call is a no-op, it must not re-materialize the keys.
	require.Same(t, firstKey, info.materializedKeys[0])
}

func TestPrepareForProbeMissingKeyColumn(t *testing.T) {
	info := NewProbeProcessInfo(32)
	info.ResetBlock(probeTestBlock([]int64{1}), 0)
	err := info.PrepareForProbe([]string{"no_such_column"}, "", InnerJoin, Any)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no_such_column")
}

func TestPrepareForProbeShapeSelection(t *testing.T) {
	tests := []struct {
		kind        JoinKind
		strictness  Strictness
		wantOffsets bool
	}{
		{InnerJoin, Any, false},
		{InnerJoin, All, true},
		{LeftJoin, All, true},
		{LeftSemiJoin, Any, false},
		{AntiJoin, Any, false},
		{NullAwareLeftAntiJoin, Any, false},
	}
	for _, tt := range tests {
		info := NewProbeProcessInfo(32)
		info.ResetBlock(probeTestBlock([]int64{1}), 0)
		require.NoError(t, info.PrepareForProbe([]string{"id"}, "", tt.kind, tt.strictness))
		if tt.wantOffsets {
			require.NotNil(t, info.ReplicationOffsets(), "kind %v", tt.kind)
			require.Nil(t, info.RowFilter(), "kind %v", tt.kind)
		} else {
			require.NotNil(t, info.RowFilter(), "kind %v", tt.kind)
			require.Nil(t, info.ReplicationOffsets(), "kind %v", tt.kind)
		}
	}
}

func TestUpdateStartRowFinishes(t *testing.T) {
	info := NewProbeProcessInfo(32)
	info.ResetBlock(probeTestBlock([]int64{1, 2, 3}), 0)
	info.UpdateStartRow(2)
	require.False(t, info.Finished())
	require.Equal(t, 2, info.StartRow())
	info.UpdateStartRow(3)
	require.True(t, info.Finished())
}
