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

// CopySelectedRows copies the rows of srcChk whose flag in selected is true
// into dstChk and returns the number of rows copied. selected must be at least
// srcChk.NumRows() long.
//
// The copy works column by column so fixed length columns are appended in
// contiguous runs instead of row by row.
func CopySelectedRows(dstChk, srcChk *Chunk, selected []bool) int {
	numSelected := 0
	for i := 0; i < srcChk.NumRows(); i++ {
		if selected[i] {
			numSelected++
		}
	}
	if numSelected == 0 {
		return 0
	}
	for colIdx, srcCol := range srcChk.columns {
		dstCol := dstChk.columns[colIdx]
		start := -1
		for i := 0; i <= srcChk.NumRows(); i++ {
			if i < srcChk.NumRows() && selected[i] {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				appendRowRange(dstCol, srcCol, start, i)
				start = -1
			}
		}
	}
	dstChk.numVirtualRows += numSelected
	return numSelected
}

// appendRowRange appends rows [start, end) of src to dst.
func appendRowRange(dst, src *Column, start, end int) {
	if src.isFixed() {
		elemLen := len(src.elemBuf)
		dst.data = append(dst.data, src.data[start*elemLen:end*elemLen]...)
	} else {
		dst.data = append(dst.data, src.data[src.offsets[start]:src.offsets[end]]...)
		base := dst.offsets[len(dst.offsets)-1] - src.offsets[start]
		for i := start; i < end; i++ {
			dst.offsets = append(dst.offsets, base+src.offsets[i+1])
		}
	}
	for i := start; i < end; i++ {
		dst.appendNullBitmap(!src.IsNull(i))
		dst.length++
	}
}
