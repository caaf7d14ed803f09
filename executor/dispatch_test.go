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
	"github.com/cascadedb/cascade/util/collate"
)

func dispatchTestChunk() (*chunk.Chunk, []*types.FieldType) {
	tps := []*types.FieldType{
		types.NewFieldType(types.TypeLonglong),
		types.NewFieldType(types.TypeVarchar),
	}
	chk := chunk.NewChunkWithCapacity(tps, 4)
	chk.AppendInt64(0, 1)
	chk.AppendString(1, "a")
	chk.AppendInt64(0, 2)
	chk.AppendString(1, "b")
	chk.AppendInt64(0, 1)
	chk.AppendString(1, "a")
	chk.AppendNull(0)
	chk.AppendString(1, "c")
	return chk, tps
}

func TestComputeDispatchHashDeterministic(t *testing.T) {
	chk, tps := dispatchTestChunk()
	keyColIdx := []int{0, 1}
	collators := collate.GetCollators([]*types.FieldType{tps[0], tps[1]})

	h1 := make([]uint32, chk.NumRows())
	h2 := make([]uint32, chk.NumRows())
	require.NoError(t, ComputeDispatchHash(chk, tps, keyColIdx, collators, 0, nil, h1))
	require.NoError(t, ComputeDispatchHash(chk, tps, keyColIdx, collators, 0, nil, h2))
	require.Equal(t, h1, h2)

	// Identical key values hash identically within one call too.
	require.Equal(t, h1[0], h1[2])
	require.NotEqual(t, h1[0], h1[1])
}

func TestComputeDispatchHashRestoreRoundDiverges(t *testing.T) {
	chk, tps := dispatchTestChunk()
	keyColIdx := []int{0, 1}
	collators := collate.GetCollators([]*types.FieldType{tps[0], tps[1]})

	round0 := make([]uint32, chk.NumRows())
	round1 := make([]uint32, chk.NumRows())
	require.NoError(t, ComputeDispatchHash(chk, tps, keyColIdx, collators, 0, nil, round0))
	require.NoError(t, ComputeDispatchHash(chk, tps, keyColIdx, collators, 1, nil, round1))
	require.NotEqual(t, round0, round1)
}

func TestComputeDispatchHashCollationAware(t *testing.T) {
	tps := []*types.FieldType{{Tp: types.TypeVarchar, Collate: types.CollationGeneralCI}}
	chk := chunk.NewChunkWithCapacity(tps, 2)
	chk.AppendString(0, "abc")
	chk.AppendString(0, "ABC")
	collators := collate.GetCollators(tps)

	out := make([]uint32, 2)
	require.NoError(t, ComputeDispatchHash(chk, tps, []int{0}, collators, 0, nil, out))
	require.Equal(t, out[0], out[1])
}

func TestNeedVirtualDispatchForProbeBlock(t *testing.T) {
	tests := []struct {
		fineGrained  bool
		spillEnabled bool
		spilled      bool
		want         bool
	}{
		{fineGrained: true, want: true},
		{fineGrained: true, spillEnabled: true, spilled: true, want: true},
		{spillEnabled: true, want: true},
		{spillEnabled: true, spilled: true, want: false},
		{want: false},
	}
	for _, tt := range tests {
		info := NewJoinBuildInfo(tt.fineGrained, 8, tt.spillEnabled, 1, 0)
		if tt.spilled {
			info.markSpilled()
		}
		require.Equal(t, tt.want, info.NeedVirtualDispatchForProbeBlock(), "%+v", tt)
	}
}
