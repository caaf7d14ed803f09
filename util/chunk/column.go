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
	"math"
	"unsafe"

	"github.com/cascadedb/cascade/types"
	"github.com/cascadedb/cascade/util/hack"
)

// varElemLen is the length for a column whose element length is variable.
const varElemLen = -1

func getFixedLen(ft *types.FieldType) int {
	switch ft.Tp {
	case types.TypeLonglong, types.TypeDouble:
		return 8
	case types.TypeTiny:
		return 1
	default:
		return varElemLen
	}
}

// Column stores one column of data in Apache Arrow format.
// See https://arrow.apache.org/docs/format/Columnar.html for details.
type Column struct {
	length     int
	nullBitmap []byte // bit 0 is null, 1 is not null
	offsets    []int64
	data       []byte
	elemBuf    []byte
}

// NewColumn creates a new column with the specific type and capacity.
func NewColumn(ft *types.FieldType, capacity int) *Column {
	return newColumn(getFixedLen(ft), capacity)
}

func newColumn(typeSize, capacity int) *Column {
	var col *Column
	if typeSize == varElemLen {
		col = newVarLenColumn(capacity)
	} else {
		col = newFixedLenColumn(typeSize, capacity)
	}
	return col
}

// newFixedLenColumn creates a fixed length Column with elemLen and initial data capacity.
func newFixedLenColumn(elemLen, capacity int) *Column {
	return &Column{
		elemBuf:    make([]byte, elemLen),
		data:       make([]byte, 0, capacity*elemLen),
		nullBitmap: make([]byte, 0, (capacity+7)>>3),
	}
}

// newVarLenColumn creates a variable length Column with initial data capacity.
func newVarLenColumn(capacity int) *Column {
	estimatedElemLen := 8
	return &Column{
		offsets:    make([]int64, 1, capacity+1),
		data:       make([]byte, 0, capacity*estimatedElemLen),
		nullBitmap: make([]byte, 0, (capacity+7)>>3),
	}
}

func (c *Column) isFixed() bool {
	return c.elemBuf != nil
}

// Reset resets this Column according to the given field type.
func (c *Column) Reset() {
	c.length = 0
	c.nullBitmap = c.nullBitmap[:0]
	if len(c.offsets) > 0 {
		// The first offset is always 0, it makes slicing the data easier.
		c.offsets = c.offsets[:1]
	}
	c.data = c.data[:0]
}

// IsNull returns if this row is null.
func (c *Column) IsNull(rowIdx int) bool {
	nullByte := c.nullBitmap[rowIdx/8]
	return nullByte&(1<<(uint(rowIdx)&7)) == 0
}

func (c *Column) appendNullBitmap(notNull bool) {
	idx := c.length >> 3
	if idx >= len(c.nullBitmap) {
		c.nullBitmap = append(c.nullBitmap, 0)
	}
	if notNull {
		pos := uint(c.length) & 7
		c.nullBitmap[idx] |= byte(1 << pos)
	}
}

// appendMultiSameNullBitmap appends multiple same bit values to `nullBitmap`.
// notNull means not null. If idx is true, appends 1, otherwise appends 0.
func (c *Column) appendMultiSameNullBitmap(notNull bool, num int) {
	numNewBytes := ((c.length + num + 7) >> 3) - len(c.nullBitmap)
	b := byte(0)
	if notNull {
		b = 0xff
	}
	for i := 0; i < numNewBytes; i++ {
		c.nullBitmap = append(c.nullBitmap, b)
	}
	if !notNull {
		return
	}
	// 1. Set all the remaining bits in the last slot of old c.nullBitmap to 1.
	numRemainingBits := uint(c.length % 8)
	bitMask := byte(^((1 << numRemainingBits) - 1))
	c.nullBitmap[c.length/8] |= bitMask
	// 2. Set all the redundant bits in the last slot of new c.nullBitmap to 0.
	numRedundantBits := uint(len(c.nullBitmap)*8 - c.length - num)
	bitMask = byte(1<<(8-numRedundantBits)) - 1
	c.nullBitmap[len(c.nullBitmap)-1] &= bitMask
}

// AppendNull appends a null value into this Column.
func (c *Column) AppendNull() {
	c.appendNullBitmap(false)
	if c.isFixed() {
		c.data = append(c.data, c.elemBuf...)
	} else {
		c.offsets = append(c.offsets, c.offsets[c.length])
	}
	c.length++
}

func (c *Column) finishAppendFixed() {
	c.data = append(c.data, c.elemBuf...)
	c.appendNullBitmap(true)
	c.length++
}

// AppendInt64 appends an int64 value into this Column.
func (c *Column) AppendInt64(i int64) {
	*(*int64)(unsafe.Pointer(&c.elemBuf[0])) = i
	c.finishAppendFixed()
}

// AppendFloat64 appends a float64 value into this Column.
func (c *Column) AppendFloat64(f float64) {
	*(*float64)(unsafe.Pointer(&c.elemBuf[0])) = f
	c.finishAppendFixed()
}

// AppendTiny appends an int8 value into this Column.
func (c *Column) AppendTiny(i int8) {
	c.elemBuf[0] = byte(i)
	c.finishAppendFixed()
}

// AppendString appends a string value into this Column.
func (c *Column) AppendString(str string) {
	c.data = append(c.data, str...)
	c.finishAppendVar()
}

// AppendBytes appends a byte slice into this Column.
func (c *Column) AppendBytes(b []byte) {
	c.data = append(c.data, b...)
	c.finishAppendVar()
}

func (c *Column) finishAppendVar() {
	c.appendNullBitmap(true)
	c.offsets = append(c.offsets, int64(len(c.data)))
	c.length++
}

// GetInt64 returns the int64 in the specific row.
func (c *Column) GetInt64(rowIdx int) int64 {
	return *(*int64)(unsafe.Pointer(&c.data[rowIdx*8]))
}

// GetFloat64 returns the float64 in the specific row.
func (c *Column) GetFloat64(rowIdx int) float64 {
	return math.Float64frombits(*(*uint64)(unsafe.Pointer(&c.data[rowIdx*8])))
}

// GetTiny returns the int8 in the specific row.
func (c *Column) GetTiny(rowIdx int) int8 {
	return int8(c.data[rowIdx])
}

// GetString returns the string in the specific row. The returned string shares
// the column storage, use hack.Slice-style care when retaining it.
func (c *Column) GetString(rowIdx int) string {
	return hack.String(c.data[c.offsets[rowIdx]:c.offsets[rowIdx+1]])
}

// GetBytes returns the byte slice in the specific row.
func (c *Column) GetBytes(rowIdx int) []byte {
	return c.data[c.offsets[rowIdx]:c.offsets[rowIdx+1]]
}

// getRaw returns the underlying raw bytes in the specific row.
func (c *Column) getRaw(rowIdx int) []byte {
	if c.isFixed() {
		elemLen := len(c.elemBuf)
		return c.data[rowIdx*elemLen : rowIdx*elemLen+elemLen]
	}
	return c.data[c.offsets[rowIdx]:c.offsets[rowIdx+1]]
}

// appendRaw appends the raw bytes of one element, already validated to match
// the column layout.
func (c *Column) appendRaw(raw []byte, notNull bool) {
	c.appendNullBitmap(notNull)
	c.data = append(c.data, raw...)
	if !c.isFixed() {
		c.offsets = append(c.offsets, int64(len(c.data)))
	}
	c.length++
}

// CopyConstruct deep copies this Column.
func (c *Column) CopyConstruct() *Column {
	newCol := &Column{length: c.length}
	newCol.nullBitmap = append(newCol.nullBitmap, c.nullBitmap...)
	newCol.offsets = append(newCol.offsets, c.offsets...)
	newCol.data = append(newCol.data, c.data...)
	newCol.elemBuf = append(newCol.elemBuf, c.elemBuf...)
	if c.elemBuf == nil {
		newCol.elemBuf = nil
	}
	return newCol
}

// Length returns the number of elements in this Column.
func (c *Column) Length() int {
	return c.length
}

// MemoryUsage returns the total memory usage of this Column in bytes.
func (c *Column) MemoryUsage() int64 {
	return int64(cap(c.nullBitmap)) + int64(cap(c.offsets))*8 +
		int64(cap(c.data)) + int64(cap(c.elemBuf))
}
