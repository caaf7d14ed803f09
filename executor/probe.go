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
	"github.com/cascadedb/cascade/util/chunk"
)

// resultShape is the per-pass result shaping artifact of a probe. Exactly one
// variant is active: a row keep-filter when at most one output row per probe
// row is possible, or a replication offset vector when matches may expand the
// probe side.
type resultShape interface {
	resultShape()
}

// rowFilter keeps one boolean per probe row, true iff the row is kept.
type rowFilter []bool

// replicationOffsets keeps, per probe row, the cumulative count of output
// rows contributed by probe rows up to and including this one. Offsets are
// non-decreasing.
type replicationOffsets []int64

func (rowFilter) resultShape()          {}
func (replicationOffsets) resultShape() {}

// ProbeProcessInfo is the resumable cursor of one probe operator over one
// input block. One input block may yield multiple output blocks: the caller
// keeps invoking scan passes on the same cursor until Finished reports true,
// only then may it fetch new input.
type ProbeProcessInfo struct {
	block          *Block
	partitionIndex int

	maxBlockSize       int
	minResultBlockSize int

	startRow int
	finished bool

	prepareForProbeDone bool
	keyColIdx           []int
	materializedKeys    []*chunk.Column
	nullMapHolder       *chunk.Column
	nullMap             []bool
	hCtx                *hashContext

	shape resultShape

	// Mid-row resume state: when one probe row's matches overflow the output
	// block, the remainder carries over to the next scan pass.
	pendingMatched []chunk.Row
	pendingPtrs    []chunk.RowPtr
	// curRowEmitted counts output rows emitted for the current probe row
	// across passes, cumOutput the total across the block.
	curRowEmitted int64
	cumOutput     int64
}

// NewProbeProcessInfo creates a probe cursor with a fixed output block size.
// It lives as long as its probe operator, ResetBlock rebinds it to each new
// input block.
func NewProbeProcessInfo(maxBlockSize int) *ProbeProcessInfo {
	return &ProbeProcessInfo{
		maxBlockSize:       maxBlockSize,
		minResultBlockSize: (maxBlockSize + 1) / 2,
	}
}

// ResetBlock binds the cursor to a new input block, clearing all per-block
// state. An empty block finishes immediately and never enters scanning.
func (info *ProbeProcessInfo) ResetBlock(block *Block, partitionIndex int) {
	info.block = block
	info.partitionIndex = partitionIndex
	info.startRow = 0
	info.prepareForProbeDone = false
	info.keyColIdx = nil
	info.materializedKeys = nil
	info.nullMapHolder = nil
	info.nullMap = nil
	info.hCtx = nil
	info.shape = nil
	info.pendingMatched = nil
	info.pendingPtrs = nil
	info.curRowEmitted = 0
	info.cumOutput = 0
	info.finished = block.NumRows() == 0
}

// PrepareForProbe is the one-time-per-block setup: it materializes the key
// columns, records the filter null map and allocates the result shape for the
// (kind, strictness) pair. A second call without an intervening ResetBlock is
// a no-op.
func (info *ProbeProcessInfo) PrepareForProbe(keyNames []string, filterColumn string, kind JoinKind, strictness Strictness) error {
	if info.prepareForProbeDone {
		return nil
	}
	keyColIdx, materialized, err := extractKeyColumns(info.block, keyNames)
	if err != nil {
		return err
	}
	holder, nullMap, err := recordFilteredRows(info.block, filterColumn)
	if err != nil {
		return err
	}
	info.keyColIdx = keyColIdx
	info.materializedKeys = materialized
	info.nullMapHolder = holder
	info.nullMap = nullMap
	if mayProbeSideExpandedAfterJoin(kind, strictness) {
		info.shape = make(replicationOffsets, 0, info.block.NumRows())
	} else {
		info.shape = make(rowFilter, 0, info.block.NumRows())
	}
	info.prepareForProbeDone = true
	return nil
}

// UpdateStartRow advances the cursor to the first unscanned row after a scan
// pass filled an output block before exhausting the input. Reaching the input
// row count finishes the cursor.
func (info *ProbeProcessInfo) UpdateStartRow(nextRow int) {
	info.startRow = nextRow
	if info.startRow >= info.block.NumRows() {
		info.finished = true
	}
}

// Finished reports whether the current input block is fully probed.
func (info *ProbeProcessInfo) Finished() bool {
	return info.finished
}

// StartRow returns the first unscanned row of the current input block.
func (info *ProbeProcessInfo) StartRow() int {
	return info.startRow
}

// PartitionIndex returns the partition this cursor probes against.
func (info *ProbeProcessInfo) PartitionIndex() int {
	return info.partitionIndex
}

// Block returns the bound input block.
func (info *ProbeProcessInfo) Block() *Block {
	return info.block
}

// RowFilter returns the keep-filter accumulated so far, nil when the cursor
// carries replication offsets instead.
func (info *ProbeProcessInfo) RowFilter() []bool {
	if f, ok := info.shape.(rowFilter); ok {
		return f
	}
	return nil
}

// ReplicationOffsets returns the cumulative replication offsets accumulated
// so far, nil when the cursor carries a row filter instead.
func (info *ProbeProcessInfo) ReplicationOffsets() []int64 {
	if offs, ok := info.shape.(replicationOffsets); ok {
		return offs
	}
	return nil
}

// appendFilter records the keep decision of one probe row.
func (info *ProbeProcessInfo) appendFilter(keep bool) {
	info.shape = append(info.shape.(rowFilter), keep)
}

// appendOffset records the cumulative output count after one probe row.
func (info *ProbeProcessInfo) appendOffset(cum int64) {
	info.shape = append(info.shape.(replicationOffsets), cum)
}

// rowIsNull reports whether the join condition of a probe row is NULL.
func (info *ProbeProcessInfo) rowIsNull(rowIdx int) bool {
	return info.nullMap != nil && info.nullMap[rowIdx]
}
