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
	"context"
	"sync"

	"github.com/pingcap/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cascadedb/cascade/config"
	"github.com/cascadedb/cascade/types"
	"github.com/cascadedb/cascade/util/bitmap"
	"github.com/cascadedb/cascade/util/chunk"
	"github.com/cascadedb/cascade/util/collate"
	"github.com/cascadedb/cascade/util/disk"
	"github.com/cascadedb/cascade/util/logutil"
	"github.com/cascadedb/cascade/util/memory"
)

// matchFlagColumn names the appended Int64 flag column of left semi family
// joins: 1 matched, 0 not matched, NULL unknown.
const matchFlagColumn = "match_flag"

// JoinDescriptor is the plan-derived description of one hash join, supplied
// once at operator construction.
type JoinDescriptor struct {
	Kind       JoinKind
	Strictness Strictness

	// BuildKeyNames and ProbeKeyNames pair up positionally. Both are empty
	// for cross joins.
	BuildKeyNames []string
	ProbeKeyNames []string
	// FilterColumn optionally names a nullable boolean column on the probe
	// block holding the precomputed join condition.
	FilterColumn string

	BuildNames []string
	BuildTypes []*types.FieldType
	ProbeNames []string
	ProbeTypes []*types.FieldType

	// MaxBlockSize caps output block row counts, 0 means the configured
	// max-chunk-size.
	MaxBlockSize int
}

// MemoryGovernor is the external memory pressure signal. After each ingested
// build block the join asks it whether a partition must spill.
type MemoryGovernor interface {
	ShouldSpill(t *memory.Tracker) bool
}

type quotaGovernor struct {
	quota int64
}

func (g quotaGovernor) ShouldSpill(t *memory.Tracker) bool {
	return g.quota > 0 && t.BytesConsumed() >= g.quota
}

// buildPartition is one shard of the build side keyspace. Ingest is
// single-writer per partition, but a spill triggered by any worker may pick
// any partition as its victim, so ingest and spill state are serialized
// through mu. After the build barrier every field is read-only.
type buildPartition struct {
	// mu guards spilled and probeSpill and serializes ingest against a
	// concurrent spill of this partition during the build phase.
	mu   sync.Mutex
	rows *hashRowContainer
	// matched marks build rows ever matched, one bitmap per chunk. Allocated
	// at FinishBuild for fullness kinds only.
	matched []*bitmap.ConcurrentBitmap
	// allRows caches every build row of the partition for cross joins.
	allRows []chunk.Row
	allPtrs []chunk.RowPtr

	spilled bool
	// probeSpill holds probe rows routed to this partition after it spilled.
	probeSpill *chunk.ListInDisk
}

func (p *buildPartition) markMatched(ptr chunk.RowPtr) {
	p.matched[ptr.ChkIdx].Set(int(ptr.RowIdx))
}

// HashJoin is a partitioned, spillable hash join operator. One operator
// instance serves every join kind, behavior is selected through the
// (kind, strictness) pair, never through per-kind operator types.
type HashJoin struct {
	desc      *JoinDescriptor
	buildInfo *JoinBuildInfo
	governor  MemoryGovernor

	collators      []collate.Collator
	buildKeyColIdx []int
	buildHCtx      *hashContext

	partitions []*buildPartition

	resultNames []string
	resultTypes []*types.FieldType
	probeColCnt int

	maxChunkSize  int
	buildFinished *atomic.Bool
	// spillMu serializes spill decisions: victim selection reads every
	// partition's spill state, so only one build worker may spill at a time.
	spillMu sync.Mutex

	memTracker  *memory.Tracker
	diskTracker *disk.Tracker

	finalize struct {
		part   int
		chkIdx int
		rowIdx int
	}
}

// NewHashJoin constructs a hash join from a plan descriptor. An unsupported
// kind/strictness combination, an unresolvable build key name or a partition
// count below one is a configuration error and fails construction. A nil
// buildInfo uses the globally configured routing defaults.
func NewHashJoin(desc *JoinDescriptor, buildInfo *JoinBuildInfo, governor MemoryGovernor) (*HashJoin, error) {
	if err := validateDescriptor(desc); err != nil {
		return nil, err
	}
	cfg := config.GetGlobalConfig()
	if buildInfo == nil {
		buildInfo = DefaultJoinBuildInfo()
	}

	maxChunkSize := desc.MaxBlockSize
	if maxChunkSize <= 0 {
		maxChunkSize = cfg.MaxChunkSize
	}
	partitionNum := cfg.JoinPartitionCount
	if buildInfo.enableFineGrainedShuffle {
		partitionNum = buildInfo.fineGrainedShuffleCount
	}
	if partitionNum < 1 {
		return nil, errors.Errorf("hash join requires at least one build partition, got %d", partitionNum)
	}

	buildKeyColIdx := make([]int, 0, len(desc.BuildKeyNames))
	for _, name := range desc.BuildKeyNames {
		idx, err := columnIndex(desc.BuildNames, name)
		if err != nil {
			return nil, err
		}
		buildKeyColIdx = append(buildKeyColIdx, idx)
	}
	keyTypes := make([]*types.FieldType, 0, len(buildKeyColIdx))
	for _, idx := range buildKeyColIdx {
		keyTypes = append(keyTypes, desc.BuildTypes[idx])
	}
	collators := collate.GetCollators(keyTypes)

	if governor == nil {
		governor = quotaGovernor{quota: cfg.MemQuotaQuery}
	}

	e := &HashJoin{
		desc:           desc,
		buildInfo:      buildInfo,
		governor:       governor,
		collators:      collators,
		buildKeyColIdx: buildKeyColIdx,
		maxChunkSize:   maxChunkSize,
		buildFinished:  atomic.NewBool(false),
		memTracker:     memory.NewTracker(memory.LabelForBuildSide, -1),
		diskTracker:    disk.NewTracker(memory.LabelForBuildSide, -1),
	}
	e.resultNames, e.resultTypes = resultSchema(desc)
	e.probeColCnt = len(desc.ProbeTypes)

	e.partitions = make([]*buildPartition, partitionNum)
	for i := range e.partitions {
		hCtx := &hashContext{
			allTypes:  desc.BuildTypes,
			keyColIdx: buildKeyColIdx,
			collators: collators,
		}
		p := &buildPartition{
			rows: newHashRowContainer(hCtx, desc.BuildTypes, maxChunkSize, 0, buildInfo.buildConcurrency > 1),
		}
		p.rows.GetMemTracker().AttachTo(e.memTracker)
		p.rows.GetDiskTracker().AttachTo(e.diskTracker)
		e.partitions[i] = p
	}
	return e, nil
}

func validateDescriptor(desc *JoinDescriptor) error {
	if isSemiFamily(desc.Kind) && desc.Strictness == All {
		return errors.Errorf("unsupported join: %v with all strictness", desc.Kind)
	}
	if len(desc.BuildKeyNames) != len(desc.ProbeKeyNames) {
		return errors.Errorf("build side has %d join keys but probe side has %d",
			len(desc.BuildKeyNames), len(desc.ProbeKeyNames))
	}
	if isCrossJoin(desc.Kind) {
		if len(desc.BuildKeyNames) != 0 {
			return errors.Errorf("%v must not carry join keys", desc.Kind)
		}
	} else if len(desc.BuildKeyNames) == 0 {
		return errors.Errorf("%v requires at least one join key", desc.Kind)
	}
	return nil
}

func columnIndex(names []string, name string) (int, error) {
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	return 0, errors.Errorf("column %q not found in schema %v", name, names)
}

// resultSchema derives the output schema of the join: probe columns first,
// then either the build columns, a match flag column, or nothing for the
// plain anti kinds.
func resultSchema(desc *JoinDescriptor) ([]string, []*types.FieldType) {
	names := append([]string(nil), desc.ProbeNames...)
	tps := append([]*types.FieldType(nil), desc.ProbeTypes...)
	switch {
	case desc.Kind == AntiJoin || desc.Kind == CrossAntiJoin || desc.Kind == NullAwareAntiJoin:
		// probe columns only
	case isLeftSemiFamily(desc.Kind):
		names = append(names, matchFlagColumn)
		tps = append(tps, types.NewFieldType(types.TypeLonglong))
	default:
		names = append(names, desc.BuildNames...)
		tps = append(tps, desc.BuildTypes...)
	}
	return names, tps
}

// ResultNames returns the output column names of the join.
func (e *HashJoin) ResultNames() []string { return e.resultNames }

// ResultTypes returns the output column types of the join.
func (e *HashJoin) ResultTypes() []*types.FieldType { return e.resultTypes }

// PartitionNum returns the number of build partitions.
func (e *HashJoin) PartitionNum() int { return len(e.partitions) }

// MaxChunkSize returns the output block row cap.
func (e *HashJoin) MaxChunkSize() int { return e.maxChunkSize }

// GetMemTracker returns the build side memory tracker.
func (e *HashJoin) GetMemTracker() *memory.Tracker { return e.memTracker }

// GetDiskTracker returns the build side disk tracker.
func (e *HashJoin) GetDiskTracker() *disk.Tracker { return e.diskTracker }

// BuildInfo returns the routing state of the build side.
func (e *HashJoin) BuildInfo() *JoinBuildInfo { return e.buildInfo }

// HashStatistic renders the aggregated hash table statistics of every build
// partition: probe side key collisions and time spent building the tables.
func (e *HashJoin) HashStatistic() string {
	agg := new(hashStatistic)
	for _, p := range e.partitions {
		agg.probeCollision += p.rows.probeCollisions()
		agg.buildTableElapse += p.rows.stat.buildTableElapse
	}
	return agg.String()
}

// PutBuildBlock ingests one build side block into the given partition. Rows
// of a spilled partition bypass the hash table and go straight to disk. Not
// safe for concurrent calls on the same partition.
func (e *HashJoin) PutBuildBlock(block *Block, partitionID int) error {
	if e.buildFinished.Load() {
		return errors.New("build block arrived after the build phase finished")
	}
	if partitionID < 0 || partitionID >= len(e.partitions) {
		return errors.Errorf("partition id %d out of range [0, %d)", partitionID, len(e.partitions))
	}
	if block.NumRows() == 0 {
		return nil
	}
	if err := checkSchema(block, e.desc.BuildNames); err != nil {
		return err
	}
	chk := block.Chunk().CopyConstruct()
	p := e.partitions[partitionID]
	p.mu.Lock()
	var err error
	if p.spilled {
		err = p.rows.rowContainer.Add(chk)
	} else {
		err = p.rows.PutChunk(chk)
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if e.buildInfo.isSpillEnabled && e.governor.ShouldSpill(e.memTracker) {
		return e.spillOnePartition()
	}
	return nil
}

func checkSchema(block *Block, names []string) error {
	if len(block.Names()) != len(names) {
		return errors.Errorf("block schema %v does not match operator schema %v", block.Names(), names)
	}
	return nil
}

// spillOnePartition spills the largest in-memory partition: its build rows
// move to disk and its hash table is abandoned, later probe rows for it are
// spilled as well and the partition is re-joined in a restore round. spillMu
// serializes concurrent triggers, the victim's mu fences off its ingest worker.
func (e *HashJoin) spillOnePartition() error {
	e.spillMu.Lock()
	defer e.spillMu.Unlock()
	victim := -1
	var victimBytes int64
	for i, p := range e.partitions {
		if p.spilled {
			continue
		}
		if mem := p.rows.GetMemTracker().BytesConsumed(); victim == -1 || mem > victimBytes {
			victim, victimBytes = i, mem
		}
	}
	if victim == -1 {
		// Every partition already streams to disk, there is nothing left to
		// move. The remaining memory drains as the spilled writes complete.
		logutil.BgLogger().Warn("memory quota still exceeded with every partition spilled",
			zap.Int("restoreRound", e.buildInfo.restoreRound))
		return nil
	}
	p := e.partitions[victim]
	p.mu.Lock()
	defer p.mu.Unlock()
	logutil.BgLogger().Info("hash join build side exceeds memory quota, spill partition",
		zap.Int("partition", victim),
		zap.Int("restoreRound", e.buildInfo.restoreRound),
		zap.String("memory", memory.FormatBytes(victimBytes)))
	p.rows.rowContainer.SpillToDisk()
	if err := p.rows.rowContainer.SpillError(); err != nil {
		// Surface spill write errors immediately, correctness depends on
		// every row being accounted for exactly once.
		return err
	}
	p.spilled = true
	p.probeSpill = chunk.NewListInDisk(e.desc.ProbeTypes)
	p.probeSpill.GetDiskTracker().AttachTo(e.diskTracker)
	e.buildInfo.markSpilled()
	return nil
}

// BuildFromChannel drains build blocks from ch with the configured build
// concurrency. Each block is split by dispatch hash, every partition is
// statically assigned to one worker (partition id modulo worker count) so no
// two workers touch the same hash table.
func (e *HashJoin) BuildFromChannel(ctx context.Context, ch <-chan *Block) error {
	workers := e.buildInfo.buildConcurrency
	if workers < 1 {
		workers = 1
	}
	workerChs := make([]chan partitionedChunk, workers)
	for i := range workerChs {
		workerChs[i] = make(chan partitionedChunk, workers)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() {
			for _, wc := range workerChs {
				close(wc)
			}
		}()
		for block := range ch {
			parts, err := e.splitByDispatch(block, e.buildKeyColIdx, e.desc.BuildTypes)
			if err != nil {
				return err
			}
			for pid, chk := range parts {
				if chk == nil {
					continue
				}
				select {
				case workerChs[pid%workers] <- partitionedChunk{pid: pid, chk: chk}:
				case <-gCtx.Done():
					return gCtx.Err()
				}
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		wc := workerChs[i]
		g.Go(func() error {
			for pc := range wc {
				block := NewBlock(pc.chk, e.desc.BuildNames, e.desc.BuildTypes)
				if err := e.PutBuildBlock(block, pc.pid); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return e.FinishBuild()
}

type partitionedChunk struct {
	pid int
	chk *chunk.Chunk
}

// splitByDispatch routes every row of block to a partition by dispatch hash
// and returns one chunk per partition, nil for partitions receiving no rows.
func (e *HashJoin) splitByDispatch(block *Block, keyColIdx []int, allTypes []*types.FieldType) ([]*chunk.Chunk, error) {
	numRows := block.NumRows()
	hashOut := make([]uint32, numRows)
	err := ComputeDispatchHash(block.Chunk(), allTypes, keyColIdx, e.collators,
		e.buildInfo.restoreRound, nil, hashOut)
	if err != nil {
		return nil, err
	}
	parts := make([]*chunk.Chunk, len(e.partitions))
	for i := 0; i < numRows; i++ {
		pid := int(hashOut[i]) % len(e.partitions)
		if parts[pid] == nil {
			parts[pid] = chunk.NewChunkWithCapacity(allTypes, numRows)
		}
		parts[pid].AppendRow(block.Chunk().GetRow(i))
	}
	return parts, nil
}

// FinishBuild is the build/probe barrier. After it returns, every partition
// hash table is immutable and probing may start.
func (e *HashJoin) FinishBuild() error {
	if e.buildFinished.Swap(true) {
		return nil
	}
	for _, p := range e.partitions {
		if p.spilled {
			continue
		}
		if getFullness(e.desc.Kind) {
			p.matched = make([]*bitmap.ConcurrentBitmap, p.rows.NumChunks())
			for i := range p.matched {
				bm := bitmap.NewConcurrentBitmap(p.rows.NumRowsOfChunk(i))
				p.matched[i] = bm
				e.memTracker.Consume(bm.BytesConsumed())
			}
		}
		if isCrossJoin(e.desc.Kind) {
			for chkIdx := 0; chkIdx < p.rows.NumChunks(); chkIdx++ {
				chk, err := p.rows.GetChunk(chkIdx)
				if err != nil {
					return err
				}
				it := chunk.NewIterator4Chunk(chk)
				for row := it.Begin(); row != it.End(); row = it.Next() {
					p.allRows = append(p.allRows, row)
					p.allPtrs = append(p.allPtrs, chunk.RowPtr{ChkIdx: uint32(chkIdx), RowIdx: uint32(row.Idx())})
				}
			}
		}
	}
	return nil
}

// Probe runs one scan pass of the cursor against its partition and returns
// at most one output block, nil when the pass produced no rows. The caller
// must keep calling Probe with the same cursor until Finished reports true.
func (e *HashJoin) Probe(info *ProbeProcessInfo) (*chunk.Chunk, error) {
	if !e.buildFinished.Load() {
		return nil, errors.New("probe started before the build phase finished")
	}
	if info.finished {
		return nil, nil
	}
	if info.partitionIndex < 0 || info.partitionIndex >= len(e.partitions) {
		return nil, errors.Errorf("partition id %d out of range [0, %d)", info.partitionIndex, len(e.partitions))
	}
	if err := info.PrepareForProbe(e.desc.ProbeKeyNames, e.desc.FilterColumn, e.desc.Kind, e.desc.Strictness); err != nil {
		return nil, err
	}
	if info.hCtx == nil {
		info.hCtx = &hashContext{
			allTypes:  info.block.FieldTypes(),
			keyColIdx: info.keyColIdx,
			collators: e.collators,
		}
	}
	p := e.partitions[info.partitionIndex]
	if p.spilled {
		if err := e.spillProbeRows(p, info); err != nil {
			return nil, err
		}
		return nil, nil
	}
	output := chunk.New(e.resultTypes, e.maxChunkSize, e.maxChunkSize)
	if err := e.scanPass(info, p, output); err != nil {
		return nil, err
	}
	if output.NumRows() == 0 {
		return nil, nil
	}
	return output, nil
}

// spillProbeRows writes the unscanned rows of the cursor's block to the
// partition's probe spill, to be re-joined in a restore round.
func (e *HashJoin) spillProbeRows(p *buildPartition, info *ProbeProcessInfo) error {
	numRows := info.block.NumRows()
	var chk *chunk.Chunk
	if info.startRow == 0 {
		chk = info.block.Chunk().CopyConstruct()
	} else {
		chk = chunk.NewChunkWithCapacity(info.block.FieldTypes(), numRows-info.startRow)
		for i := info.startRow; i < numRows; i++ {
			chk.AppendRow(info.block.Chunk().GetRow(i))
		}
	}
	if err := p.probeSpill.Add(chk); err != nil {
		return err
	}
	info.UpdateStartRow(numRows)
	return nil
}

// NextUnmatchedBuildRows emits the next block of build rows never matched
// during the whole probe phase, probe side columns filled with NULL. Only
// meaningful for fullness kinds. Returns nil when exhausted.
func (e *HashJoin) NextUnmatchedBuildRows() (*chunk.Chunk, error) {
	if !getFullness(e.desc.Kind) {
		return nil, nil
	}
	if !e.buildFinished.Load() {
		return nil, errors.New("unmatched rows requested before the build phase finished")
	}
	output := chunk.New(e.resultTypes, e.maxChunkSize, e.maxChunkSize)
	cur := &e.finalize
	for cur.part < len(e.partitions) {
		p := e.partitions[cur.part]
		if p.spilled {
			// Spilled partitions emit their unmatched rows from their own
			// restore round.
			cur.part, cur.chkIdx, cur.rowIdx = cur.part+1, 0, 0
			continue
		}
		for cur.chkIdx < p.rows.NumChunks() {
			numRows := p.rows.NumRowsOfChunk(cur.chkIdx)
			for cur.rowIdx < numRows {
				if output.IsFull() {
					return output, nil
				}
				if !p.matched[cur.chkIdx].UnsafeIsSet(cur.rowIdx) {
					row, err := p.rows.GetRow(chunk.RowPtr{ChkIdx: uint32(cur.chkIdx), RowIdx: uint32(cur.rowIdx)})
					if err != nil {
						return nil, err
					}
					output.AppendNullRow(0, e.probeColCnt)
					output.AppendPartialRow(e.probeColCnt, row)
				}
				cur.rowIdx++
			}
			cur.chkIdx, cur.rowIdx = cur.chkIdx+1, 0
		}
		cur.part, cur.chkIdx, cur.rowIdx = cur.part+1, 0, 0
	}
	if output.NumRows() == 0 {
		return nil, nil
	}
	return output, nil
}

// HasSpilledPartitions reports whether any partition spilled and needs a
// restore round.
func (e *HashJoin) HasSpilledPartitions() bool {
	for _, p := range e.partitions {
		if p.spilled {
			return true
		}
	}
	return false
}

// RestoreSpilledPartitions re-joins each spilled partition as a fresh, smaller
// join at restore round+1: the spilled build rows are re-dispatched and
// rebuilt, the spilled probe rows re-probed, and output blocks handed to
// onOutput. A restored round that spills again restores recursively.
func (e *HashJoin) RestoreSpilledPartitions(onOutput func(*chunk.Chunk) error) error {
	for pid, p := range e.partitions {
		if !p.spilled {
			continue
		}
		if err := e.restorePartition(pid, p, onOutput); err != nil {
			return err
		}
	}
	return nil
}

func (e *HashJoin) restorePartition(pid int, p *buildPartition, onOutput func(*chunk.Chunk) error) (err error) {
	cfg := config.GetGlobalConfig()
	nextRound := e.buildInfo.restoreRound + 1
	spillEnabled := e.buildInfo.isSpillEnabled && nextRound < cfg.MaxSpillRounds
	logutil.BgLogger().Info("restore spilled hash join partition",
		zap.Int("partition", pid), zap.Int("restoreRound", nextRound))

	childInfo := NewJoinBuildInfo(false, 0, spillEnabled, 1, nextRound)
	child, err := NewHashJoin(e.desc, childInfo, e.governor)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := child.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	// Rebuild: the spilled build rows are re-read and re-dispatched with the
	// next round's hash.
	for chkIdx := 0; chkIdx < p.rows.NumChunks(); chkIdx++ {
		chk, err := p.rows.GetChunk(chkIdx)
		if err != nil {
			return err
		}
		block := NewBlock(chk, e.desc.BuildNames, e.desc.BuildTypes)
		parts, err := child.splitByDispatch(block, child.buildKeyColIdx, child.desc.BuildTypes)
		if err != nil {
			return err
		}
		for cpid, cchk := range parts {
			if cchk == nil {
				continue
			}
			if err := child.PutBuildBlock(NewBlock(cchk, e.desc.BuildNames, e.desc.BuildTypes), cpid); err != nil {
				return err
			}
		}
	}
	if err := child.FinishBuild(); err != nil {
		return err
	}

	// Re-probe the spilled probe rows, routed by the next round's hash.
	probeKeyColIdx := make([]int, 0, len(e.desc.ProbeKeyNames))
	for _, name := range e.desc.ProbeKeyNames {
		idx, err := columnIndex(e.desc.ProbeNames, name)
		if err != nil {
			return err
		}
		probeKeyColIdx = append(probeKeyColIdx, idx)
	}
	for chkIdx := 0; chkIdx < p.probeSpill.NumChunks(); chkIdx++ {
		chk, err := p.probeSpill.GetChunk(chkIdx)
		if err != nil {
			return err
		}
		block := NewBlock(chk, e.desc.ProbeNames, e.desc.ProbeTypes)
		parts, err := child.splitByDispatch(block, probeKeyColIdx, e.desc.ProbeTypes)
		if err != nil {
			return err
		}
		for cpid, cchk := range parts {
			if cchk == nil {
				continue
			}
			info := NewProbeProcessInfo(child.maxChunkSize)
			info.ResetBlock(NewBlock(cchk, e.desc.ProbeNames, e.desc.ProbeTypes), cpid)
			for !info.Finished() {
				out, err := child.Probe(info)
				if err != nil {
					return err
				}
				if out != nil {
					if err := onOutput(out); err != nil {
						return err
					}
				}
			}
		}
	}

	// Finalize this partition's unmatched build rows for fullness kinds.
	for {
		out, err := child.NextUnmatchedBuildRows()
		if err != nil {
			return err
		}
		if out == nil {
			break
		}
		if err := onOutput(out); err != nil {
			return err
		}
	}
	return child.RestoreSpilledPartitions(onOutput)
}

// Close releases every partition's memory and disk resources.
func (e *HashJoin) Close() error {
	var firstErr error
	for _, p := range e.partitions {
		if err := p.rows.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if p.probeSpill != nil {
			if err := p.probeSpill.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	e.memTracker.Detach()
	e.diskTracker.Detach()
	return firstErr
}
