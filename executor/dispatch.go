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
	"github.com/twmb/murmur3"

	"github.com/cascadedb/cascade/config"
	"github.com/cascadedb/cascade/types"
	"github.com/cascadedb/cascade/util/chunk"
	"github.com/cascadedb/cascade/util/codec"
	"github.com/cascadedb/cascade/util/collate"
)

// JoinBuildInfo carries the build side routing configuration and state of one
// hash join: fine-grained shuffle, spill state and the current restore round.
type JoinBuildInfo struct {
	// enableFineGrainedShuffle pre-partitions data at finer granularity than
	// the worker count, for load balancing.
	enableFineGrainedShuffle bool
	fineGrainedShuffleCount  int
	// isSpillEnabled indicates whether the build side may spill to disk.
	isSpillEnabled bool
	// isSpilled indicates whether the build side has already spilled. Once it
	// has, routing becomes physical: the partition is the spill file identity,
	// not a re-hashed virtual id.
	isSpilled bool
	// buildConcurrency bounds the number of concurrent build workers.
	buildConcurrency int
	// restoreRound is 0 for original data, N for the Nth restore generation.
	restoreRound int
}

// NewJoinBuildInfo creates the build side routing state of one hash join.
func NewJoinBuildInfo(fineGrainedShuffle bool, fineGrainedShuffleCount int, spillEnabled bool, buildConcurrency, restoreRound int) *JoinBuildInfo {
	return &JoinBuildInfo{
		enableFineGrainedShuffle: fineGrainedShuffle,
		fineGrainedShuffleCount:  fineGrainedShuffleCount,
		isSpillEnabled:           spillEnabled,
		buildConcurrency:         buildConcurrency,
		restoreRound:             restoreRound,
	}
}

// DefaultJoinBuildInfo derives the routing state of a fresh join from the
// global configuration: spill enablement from oom-use-tmp-storage and worker
// count from join-concurrency.
func DefaultJoinBuildInfo() *JoinBuildInfo {
	cfg := config.GetGlobalConfig()
	return NewJoinBuildInfo(false, 0, cfg.OOMUseTmpStorage, cfg.JoinConcurrency, 0)
}

// NeedVirtualDispatchForProbeBlock returns whether probe side rows must be
// routed to the same virtual partition id the build side used. This holds
// when fine-grained shuffle is on, or spill is enabled but has not happened
// yet. After an actual spill, routing follows spill file identity instead.
func (info *JoinBuildInfo) NeedVirtualDispatchForProbeBlock() bool {
	if info.enableFineGrainedShuffle {
		return true
	}
	return info.isSpillEnabled && !info.isSpilled
}

// RestoreRound returns the current restore round.
func (info *JoinBuildInfo) RestoreRound() int {
	return info.restoreRound
}

// BuildConcurrency returns the number of concurrent build workers.
func (info *JoinBuildInfo) BuildConcurrency() int {
	return info.buildConcurrency
}

// markSpilled records that the build side has spilled at least one partition.
func (info *JoinBuildInfo) markSpilled() {
	info.isSpilled = true
}

// dispatchHashSeedBase mixes the restore round into the dispatch hash so a
// restored generation routes rows differently from the generation it was
// spilled by, even for identical key values.
const dispatchHashSeedBase uint32 = 0x9e3779b9

func dispatchHashSeed(restoreRound int) uint32 {
	return dispatchHashSeedBase * uint32(restoreRound+1)
}

// ComputeDispatchHash computes a deterministic 32-bit routing hash per row
// over the join key columns of chk, collation aware for string keys, mixed
// with restoreRound. hashOut must have chk.NumRows() entries. Partition id is
// derived by the caller as hash modulo the active partition count.
//
// Rows whose key contains NULL still get a hash so they can be routed, the
// NULL handling itself belongs to the join kind logic.
func ComputeDispatchHash(chk *chunk.Chunk, allTypes []*types.FieldType, keyColIdx []int,
	collators []collate.Collator, restoreRound int, buf []byte, hashOut []uint32) error {
	seed := dispatchHashSeed(restoreRound)
	numRows := chk.NumRows()
	for i := 0; i < numRows; i++ {
		var err error
		buf, _, err = codec.HashChunkRow(collators, buf[:0], chk.GetRow(i), allTypes, keyColIdx)
		if err != nil {
			return err
		}
		hashOut[i] = murmur3.SeedSum32(seed, buf)
	}
	return nil
}
