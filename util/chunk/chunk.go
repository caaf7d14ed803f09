// Copyright 2022 CascadeDB, Inc.
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
	"github.com/cascadedb/cascade/types"
	"modernc.org/mathutil"
)

// Chunk stores multiple rows of data in columnar format.
// Columns are in Apache Arrow format, the zero chunk is not usable, create one
// with New or NewChunkWithCapacity.
//
// Values are appended in compact format and can be directly accessed only
// after they have been finished with an Append call.
type Chunk struct {
	columns []*Column
	// numVirtualRows indicates the number of virtual rows, which have zero
	// columns. It is used only when this Chunk doesn't hold any data.
	numVirtualRows int
	// capacity indicates the max number of rows this chunk can hold.
	capacity int
	// requiredRows indicates how many rows is considered full for the current
	// batch. A chunk is full when NumRows() >= requiredRows.
	requiredRows int
}

// InitialCapacity is the default initial capacity of a chunk.
const InitialCapacity = 32

// New creates a new chunk with the given field types, cap and max chunk size.
//
//	cap: the limit for the max number of rows.
//	maxChunkSize: the max limit for the number of rows.
func New(fields []*types.FieldType, capacity, maxChunkSize int) *Chunk {
	chk := &Chunk{
		columns:  make([]*Column, 0, len(fields)),
		capacity: mathutil.Min(capacity, maxChunkSize),
	}
	for _, f := range fields {
		chk.columns = append(chk.columns, NewColumn(f, chk.capacity))
	}
	chk.requiredRows = maxChunkSize
	return chk
}

// NewChunkWithCapacity creates a new chunk with the given field types and capacity.
func NewChunkWithCapacity(fields []*types.FieldType, capacity int) *Chunk {
	return New(fields, capacity, capacity)
}

// RequiredRows returns how many rows is considered full for the current batch.
func (c *Chunk) RequiredRows() int {
	return c.requiredRows
}

// SetRequiredRows sets the number of required rows.
func (c *Chunk) SetRequiredRows(requiredRows, maxChunkSize int) *Chunk {
	if requiredRows <= 0 || requiredRows > maxChunkSize {
		requiredRows = maxChunkSize
	}
	c.requiredRows = requiredRows
	return c
}

// IsFull returns if this chunk is considered full for the current batch.
func (c *Chunk) IsFull() bool {
	return c.NumRows() >= c.requiredRows
}

// Capacity returns the max number of rows this chunk can hold.
func (c *Chunk) Capacity() int {
	return c.capacity
}

// NumCols returns the number of columns in the chunk.
func (c *Chunk) NumCols() int {
	return len(c.columns)
}

// NumRows returns the number of rows in the chunk.
func (c *Chunk) NumRows() int {
	if c.NumCols() == 0 {
		return c.numVirtualRows
	}
	return c.columns[0].length
}

// Column returns the specific column.
func (c *Chunk) Column(colIdx int) *Column {
	return c.columns[colIdx]
}

// GetRow gets the Row in the chunk with the row index.
func (c *Chunk) GetRow(idx int) Row {
	return Row{c: c, idx: idx}
}

// Reset resets the chunk, so the memory it allocated can be reused.
// Make sure all the data in the chunk is not used anymore before you reuse this chunk.
func (c *Chunk) Reset() {
	for _, col := range c.columns {
		col.Reset()
	}
	c.numVirtualRows = 0
}

// SwapColumns swaps columns with another Chunk.
func (c *Chunk) SwapColumns(other *Chunk) {
	c.columns, other.columns = other.columns, c.columns
	c.numVirtualRows, other.numVirtualRows = other.numVirtualRows, c.numVirtualRows
}

// AppendRow appends a row to the chunk.
func (c *Chunk) AppendRow(row Row) {
	c.AppendPartialRow(0, row)
	c.numVirtualRows++
}

// AppendPartialRow appends a row to the chunk, starting from colOff.
func (c *Chunk) AppendPartialRow(colOff int, row Row) {
	for i, rowCol := range row.c.columns {
		chkCol := c.columns[colOff+i]
		chkCol.appendRaw(rowCol.getRaw(row.idx), !rowCol.IsNull(row.idx))
	}
}

// AppendNullRow appends a row of all-null values for columns [colOff, colOff+numCols).
func (c *Chunk) AppendNullRow(colOff, numCols int) {
	for i := 0; i < numCols; i++ {
		c.columns[colOff+i].AppendNull()
	}
}

// AppendInt64 appends an int64 value to the chunk.
func (c *Chunk) AppendInt64(colIdx int, i int64) {
	c.columns[colIdx].AppendInt64(i)
}

// AppendFloat64 appends a float64 value to the chunk.
func (c *Chunk) AppendFloat64(colIdx int, f float64) {
	c.columns[colIdx].AppendFloat64(f)
}

// AppendTiny appends an int8 value to the chunk.
func (c *Chunk) AppendTiny(colIdx int, i int8) {
	c.columns[colIdx].AppendTiny(i)
}

// AppendString appends a string value to the chunk.
func (c *Chunk) AppendString(colIdx int, str string) {
	c.columns[colIdx].AppendString(str)
}

// AppendBytes appends a byte slice to the chunk.
func (c *Chunk) AppendBytes(colIdx int, b []byte) {
	c.columns[colIdx].AppendBytes(b)
}

// AppendNull appends a null value to the chunk.
func (c *Chunk) AppendNull(colIdx int) {
	c.columns[colIdx].AppendNull()
}

// CopyConstruct creates a new chunk and copies this chunk's data into it.
func (c *Chunk) CopyConstruct() *Chunk {
	newChk := &Chunk{
		numVirtualRows: c.numVirtualRows,
		capacity:       c.capacity,
		requiredRows:   c.requiredRows,
		columns:        make([]*Column, c.NumCols()),
	}
	for i := range c.columns {
		newChk.columns[i] = c.columns[i].CopyConstruct()
	}
	return newChk
}

// MemoryUsage returns the total memory usage of this Chunk in bytes.
func (c *Chunk) MemoryUsage() (sum int64) {
	for _, col := range c.columns {
		sum += col.MemoryUsage()
	}
	return
}
