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
	"github.com/pingcap/errors"

	"github.com/cascadedb/cascade/types"
	"github.com/cascadedb/cascade/util/chunk"
)

// Block is the unit of data flow between operators: a chunk whose columns
// carry names, so join keys can be resolved by name against the plan. The
// join engine borrows blocks from the upstream producer, it never owns them
// beyond a single call.
type Block struct {
	chk   *chunk.Chunk
	names []string
	tps   []*types.FieldType
}

// NewBlock wraps chk with column names and field types. names and tps must
// have one entry per chunk column.
func NewBlock(chk *chunk.Chunk, names []string, tps []*types.FieldType) *Block {
	return &Block{chk: chk, names: names, tps: tps}
}

// Chunk returns the underlying chunk.
func (b *Block) Chunk() *chunk.Chunk {
	return b.chk
}

// Names returns the column names.
func (b *Block) Names() []string {
	return b.names
}

// FieldTypes returns the column field types.
func (b *Block) FieldTypes() []*types.FieldType {
	return b.tps
}

// NumRows returns the number of rows in the block.
func (b *Block) NumRows() int {
	if b == nil || b.chk == nil {
		return 0
	}
	return b.chk.NumRows()
}

// ColumnIndex resolves a column by name. A missing column is a plan error,
// not a data error, and fails the containing operation.
func (b *Block) ColumnIndex(name string) (int, error) {
	for i, n := range b.names {
		if n == name {
			return i, nil
		}
	}
	return 0, errors.Errorf("column %q not found in block schema %v", name, b.names)
}

// extractKeyColumns resolves the named key columns of the block and
// deep-copies them so that key data outlives the borrowed block. It returns
// the key column indexes in the block together with the materialized columns.
func extractKeyColumns(b *Block, keyNames []string) (keyColIdx []int, materialized []*chunk.Column, err error) {
	keyColIdx = make([]int, 0, len(keyNames))
	materialized = make([]*chunk.Column, 0, len(keyNames))
	for _, name := range keyNames {
		idx, err := b.ColumnIndex(name)
		if err != nil {
			return nil, nil, err
		}
		keyColIdx = append(keyColIdx, idx)
		materialized = append(materialized, b.chk.Column(idx).CopyConstruct())
	}
	return keyColIdx, materialized, nil
}

// recordFilteredRows computes the null map of the join condition filter
// column when one is configured. The filter column is a nullable boolean, a
// row whose filter value is NULL carries an unknown join condition. When no
// filter column is configured both results are absent and every row is
// treated as non-null.
func recordFilteredRows(b *Block, filterColumn string) (holder *chunk.Column, nullMap []bool, err error) {
	if filterColumn == "" {
		return nil, nil, nil
	}
	idx, err := b.ColumnIndex(filterColumn)
	if err != nil {
		return nil, nil, err
	}
	holder = b.chk.Column(idx).CopyConstruct()
	nullMap = make([]bool, b.NumRows())
	for i := range nullMap {
		nullMap[i] = holder.IsNull(i)
	}
	return holder, nullMap, nil
}

// filterAccepts reads the boolean filter value of one row. It returns false
// for NULL, callers needing three-valued logic consult the null map first.
func filterAccepts(holder *chunk.Column, rowIdx int) bool {
	if holder == nil {
		return true
	}
	if holder.IsNull(rowIdx) {
		return false
	}
	return holder.GetTiny(rowIdx) != 0
}
