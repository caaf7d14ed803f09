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
	"modernc.org/mathutil"

	"github.com/cascadedb/cascade/util/chunk"
)

// matchVerdict is the three-valued result of one probe row's match search.
// Unknown only arises for the null-aware semi family, where a NULL join key
// on either side makes the verdict neither matched nor definitely unmatched.
type matchVerdict int8

const (
	verdictNotMatched matchVerdict = iota
	verdictMatched
	verdictUnknown
)

// scanPass scans probe rows from the cursor's start row, appending result
// rows to output. It stops at a row boundary once output holds at least
// minResultBlockSize rows, splits a row's matches across passes rather than
// exceed maxBlockSize, and finishes the cursor when the input is exhausted.
func (e *HashJoin) scanPass(info *ProbeProcessInfo, p *buildPartition, output *chunk.Chunk) error {
	if isAntiJoin(e.desc.Kind) {
		return e.scanPassAnti(info, p, output)
	}
	numRows := info.block.NumRows()
	i := info.startRow
	for i < numRows {
		if output.NumRows() >= e.maxChunkSize {
			info.UpdateStartRow(i)
			return nil
		}
		var rowDone bool
		var err error
		if e.desc.Strictness == Any || isSemiFamily(e.desc.Kind) {
			err = e.probeRowSingle(info, p, output, i)
			rowDone = true
		} else {
			rowDone, err = e.probeRowAll(info, p, output, i)
		}
		if err != nil {
			return err
		}
		if !rowDone {
			info.UpdateStartRow(i)
			return nil
		}
		i++
		if output.NumRows() >= info.minResultBlockSize {
			info.UpdateStartRow(i)
			return nil
		}
	}
	info.UpdateStartRow(numRows)
	return nil
}

// scanPassAnti scans probe rows of the anti kinds, whose output is exactly the
// kept probe rows: verdicts accumulate into the row filter and the kept rows
// are copied out in one batch at the end of the pass. Unknown is excluded from
// the anti result, it is not a definite non-match.
func (e *HashJoin) scanPassAnti(info *ProbeProcessInfo, p *buildPartition, output *chunk.Chunk) error {
	numRows := info.block.NumRows()
	selected := make([]bool, numRows)
	kept := 0
	i := info.startRow
	for i < numRows {
		if kept >= e.maxChunkSize {
			break
		}
		_, _, verdict, err := e.resolveMatches(p, info, i)
		if err != nil {
			return err
		}
		keep := verdict == verdictNotMatched
		selected[i] = keep
		info.appendFilter(keep)
		if keep {
			kept++
		}
		i++
		if kept >= info.minResultBlockSize {
			break
		}
	}
	chunk.CopySelectedRows(output, info.block.Chunk(), selected)
	info.UpdateStartRow(i)
	return nil
}

// probeRowSingle handles the kinds producing at most one output row per probe
// row: every Any strictness kind and the left semi family.
func (e *HashJoin) probeRowSingle(info *ProbeProcessInfo, p *buildPartition, output *chunk.Chunk, rowIdx int) error {
	matched, ptrs, verdict, err := e.resolveMatches(p, info, rowIdx)
	if err != nil {
		return err
	}
	probeRow := info.block.Chunk().GetRow(rowIdx)
	kind := e.desc.Kind
	switch {
	case isLeftSemiFamily(kind):
		output.AppendPartialRow(0, probeRow)
		semi := kind == LeftSemiJoin || kind == CrossLeftSemiJoin || kind == NullAwareLeftSemiJoin
		switch verdict {
		case verdictUnknown:
			output.AppendNull(e.probeColCnt)
		case verdictMatched:
			if semi {
				output.AppendInt64(e.probeColCnt, 1)
			} else {
				output.AppendInt64(e.probeColCnt, 0)
			}
		case verdictNotMatched:
			if semi {
				output.AppendInt64(e.probeColCnt, 0)
			} else {
				output.AppendInt64(e.probeColCnt, 1)
			}
		}
		info.appendFilter(true)
	case isInnerJoin(kind):
		if verdict == verdictMatched {
			e.appendJoinedRow(output, probeRow, matched[0])
			info.appendFilter(true)
		} else {
			info.appendFilter(false)
		}
	case isLeftJoin(kind):
		if verdict == verdictMatched {
			e.appendJoinedRow(output, probeRow, matched[0])
		} else {
			e.appendNullExtendedRow(output, probeRow)
		}
		info.appendFilter(true)
	case isRightJoin(kind):
		if verdict == verdictMatched {
			e.appendJoinedRow(output, probeRow, matched[0])
			p.markMatched(ptrs[0])
			info.appendFilter(true)
		} else {
			info.appendFilter(false)
		}
	case kind == FullJoin:
		if verdict == verdictMatched {
			e.appendJoinedRow(output, probeRow, matched[0])
			p.markMatched(ptrs[0])
		} else {
			e.appendNullExtendedRow(output, probeRow)
		}
		info.appendFilter(true)
	}
	return nil
}

// probeRowAll handles All strictness kinds, emitting every match of one probe
// row. It returns false when the output block filled before the row's matches
// were exhausted, the remainder stays on the cursor for the next pass.
func (e *HashJoin) probeRowAll(info *ProbeProcessInfo, p *buildPartition, output *chunk.Chunk, rowIdx int) (rowDone bool, err error) {
	kind := e.desc.Kind
	if len(info.pendingMatched) == 0 && info.curRowEmitted == 0 {
		matched, ptrs, verdict, err := e.resolveMatches(p, info, rowIdx)
		if err != nil {
			return false, err
		}
		if verdict != verdictMatched {
			matched, ptrs = nil, nil
		}
		info.pendingMatched, info.pendingPtrs = matched, ptrs
	}
	probeRow := info.block.Chunk().GetRow(rowIdx)
	room := e.maxChunkSize - output.NumRows()
	take := mathutil.Min(len(info.pendingMatched), room)
	for j := 0; j < take; j++ {
		e.appendJoinedRow(output, probeRow, info.pendingMatched[j])
		if getFullness(kind) {
			p.markMatched(info.pendingPtrs[j])
		}
	}
	info.curRowEmitted += int64(take)
	info.pendingMatched = info.pendingMatched[take:]
	info.pendingPtrs = info.pendingPtrs[take:]
	if len(info.pendingMatched) > 0 {
		return false, nil
	}
	if info.curRowEmitted == 0 && (isLeftJoin(kind) || kind == FullJoin) {
		e.appendNullExtendedRow(output, probeRow)
		info.curRowEmitted = 1
	}
	info.cumOutput += info.curRowEmitted
	info.appendOffset(info.cumOutput)
	info.curRowEmitted = 0
	info.pendingMatched, info.pendingPtrs = nil, nil
	return true, nil
}

// resolveMatches finds the build rows matching one probe row and classifies
// the outcome under the join kind's logic. The join condition filter, when
// configured, is consulted first: a false condition means no matches, a NULL
// condition is unknown for null-aware kinds and a non-match otherwise.
func (e *HashJoin) resolveMatches(p *buildPartition, info *ProbeProcessInfo, rowIdx int) (matched []chunk.Row, ptrs []chunk.RowPtr, verdict matchVerdict, err error) {
	kind := e.desc.Kind
	row := info.block.Chunk().GetRow(rowIdx)
	conditionNull := info.rowIsNull(rowIdx)
	conditionFalse := e.desc.FilterColumn != "" && !conditionNull && !filterAccepts(info.nullMapHolder, rowIdx)

	keyHasNull := false
	if !conditionNull && !conditionFalse {
		if isCrossJoin(kind) {
			matched, ptrs = p.allRows, p.allPtrs
		} else {
			var key uint64
			key, keyHasNull, err = info.hCtx.hashKeyOfRow(row)
			if err != nil {
				return nil, nil, verdictNotMatched, err
			}
			if !keyHasNull {
				matched, ptrs, err = p.rows.GetMatchedRowsAndPtrs(key, row, info.hCtx)
				if err != nil {
					return nil, nil, verdictNotMatched, err
				}
			}
		}
	}
	switch {
	case len(matched) > 0:
		verdict = verdictMatched
	case isNullAwareSemiFamily(kind) && (conditionNull || keyHasNull || p.rows.hasNullKey):
		verdict = verdictUnknown
	default:
		verdict = verdictNotMatched
	}
	return matched, ptrs, verdict, nil
}

func (e *HashJoin) appendJoinedRow(output *chunk.Chunk, probeRow, buildRow chunk.Row) {
	output.AppendPartialRow(0, probeRow)
	output.AppendPartialRow(e.probeColCnt, buildRow)
}

func (e *HashJoin) appendNullExtendedRow(output *chunk.Chunk, probeRow chunk.Row) {
	output.AppendPartialRow(0, probeRow)
	output.AppendNullRow(e.probeColCnt, len(e.desc.BuildTypes))
}
