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

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"os"

	"github.com/pingcap/errors"

	"github.com/cascadedb/cascade/config"
	"github.com/cascadedb/cascade/types"
	"github.com/cascadedb/cascade/util/disk"
	"github.com/cascadedb/cascade/util/memory"
)

// ListInDisk represents a slice of chunks storing in temporary disk.
// Each chunk is written as one self-describing block: a fixed header holding
// the row count and a CRC-32 of the payload, then the encoded rows. The row
// count recorded in the header is validated on read back, a mismatch means
// the spill file is corrupted and the query must fail.
type ListInDisk struct {
	fieldTypes []*types.FieldType

	disk *os.File
	w    *bufio.Writer
	// offWrite is the current write offset of the file.
	offWrite int64
	flushed  bool

	numRowsOfEachChunk []int
	offsetsOfChunks    []int64
	offsetsOfRows      [][]int64
	totalNumRows       int

	diskTracker *disk.Tracker
}

const listInDiskHeaderSize = 8 // uint32 numRows + uint32 crc32

// NewListInDisk creates a new ListInDisk with field types.
func NewListInDisk(fieldTypes []*types.FieldType) *ListInDisk {
	return &ListInDisk{
		fieldTypes:  fieldTypes,
		diskTracker: disk.NewTracker(memory.LabelForChunkListInDisk, -1),
	}
}

func (l *ListInDisk) initDiskFile() (err error) {
	l.disk, err = os.CreateTemp(config.GetGlobalConfig().TempStoragePath, "cascade_spill")
	if err != nil {
		return errors.Trace(err)
	}
	l.w = bufio.NewWriter(l.disk)
	return nil
}

// GetDiskTracker returns the disk tracker of this ListInDisk.
func (l *ListInDisk) GetDiskTracker() *disk.Tracker {
	return l.diskTracker
}

// Add adds a chunk to the ListInDisk. Caller must make sure the input chk is
// not empty, not used any more and has the same field types with the list.
func (l *ListInDisk) Add(chk *Chunk) (err error) {
	if chk.NumRows() == 0 {
		return errors.New("chunk appended to ListInDisk should have at least 1 row")
	}
	if l.disk == nil {
		if err = l.initDiskFile(); err != nil {
			return err
		}
	}
	payload, rowOffs := encodeChunk(chk)
	var header [listInDiskHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(chk.NumRows()))
	binary.LittleEndian.PutUint32(header[4:], crc32.ChecksumIEEE(payload))
	if _, err = l.w.Write(header[:]); err != nil {
		return errors.Trace(err)
	}
	if _, err = l.w.Write(payload); err != nil {
		return errors.Trace(err)
	}

	payloadOff := l.offWrite + listInDiskHeaderSize
	for i := range rowOffs {
		rowOffs[i] += payloadOff
	}
	l.offsetsOfChunks = append(l.offsetsOfChunks, l.offWrite)
	l.offsetsOfRows = append(l.offsetsOfRows, rowOffs)
	l.numRowsOfEachChunk = append(l.numRowsOfEachChunk, chk.NumRows())
	l.totalNumRows += chk.NumRows()
	l.offWrite += listInDiskHeaderSize + int64(len(payload))
	l.flushed = false
	l.diskTracker.Consume(listInDiskHeaderSize + int64(len(payload)))
	return nil
}

func (l *ListInDisk) flush() error {
	if l.flushed || l.w == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return errors.Trace(err)
	}
	l.flushed = true
	return nil
}

// GetChunk gets a Chunk from the ListInDisk by chunk index.
func (l *ListInDisk) GetChunk(chkIdx int) (*Chunk, error) {
	if err := l.flush(); err != nil {
		return nil, err
	}
	off := l.offsetsOfChunks[chkIdx]
	var end int64
	if chkIdx+1 < len(l.offsetsOfChunks) {
		end = l.offsetsOfChunks[chkIdx+1]
	} else {
		end = l.offWrite
	}
	buf := make([]byte, end-off)
	if _, err := l.disk.ReadAt(buf, off); err != nil {
		return nil, errors.Trace(err)
	}
	numRows := int(binary.LittleEndian.Uint32(buf[:4]))
	wantCRC := binary.LittleEndian.Uint32(buf[4:8])
	payload := buf[listInDiskHeaderSize:]
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return nil, errors.Errorf("spill file checksum mismatch in chunk %d", chkIdx)
	}
	if numRows != l.numRowsOfEachChunk[chkIdx] {
		return nil, errors.Errorf("spill file row count mismatch in chunk %d: header %d, recorded %d",
			chkIdx, numRows, l.numRowsOfEachChunk[chkIdx])
	}
	chk := NewChunkWithCapacity(l.fieldTypes, numRows)
	rest, err := decodeRows(chk, payload, numRows, l.fieldTypes)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.Errorf("spill file has %d trailing bytes in chunk %d", len(rest), chkIdx)
	}
	return chk, nil
}

// GetRow gets a Row from the ListInDisk by RowPtr.
func (l *ListInDisk) GetRow(ptr RowPtr) (Row, error) {
	if err := l.flush(); err != nil {
		return Row{}, err
	}
	off := l.offsetsOfRows[ptr.ChkIdx][ptr.RowIdx]
	var end int64
	if int(ptr.RowIdx)+1 < len(l.offsetsOfRows[ptr.ChkIdx]) {
		end = l.offsetsOfRows[ptr.ChkIdx][ptr.RowIdx+1]
	} else if int(ptr.ChkIdx)+1 < len(l.offsetsOfChunks) {
		end = l.offsetsOfChunks[ptr.ChkIdx+1]
	} else {
		end = l.offWrite
	}
	buf := make([]byte, end-off)
	if _, err := l.disk.ReadAt(buf, off); err != nil {
		return Row{}, errors.Trace(err)
	}
	chk := NewChunkWithCapacity(l.fieldTypes, 1)
	if _, err := decodeRows(chk, buf, 1, l.fieldTypes); err != nil {
		return Row{}, err
	}
	return chk.GetRow(0), nil
}

// NumChunks returns the number of chunks in the ListInDisk.
func (l *ListInDisk) NumChunks() int {
	return len(l.numRowsOfEachChunk)
}

// NumRowsOfChunk returns the number of rows of a chunk in the ListInDisk.
func (l *ListInDisk) NumRowsOfChunk(chkID int) int {
	return l.numRowsOfEachChunk[chkID]
}

// Len returns the number of rows in the ListInDisk.
func (l *ListInDisk) Len() int {
	return l.totalNumRows
}

// Close releases the disk resource.
func (l *ListInDisk) Close() error {
	if l.disk != nil {
		l.diskTracker.Detach()
		name := l.disk.Name()
		err := l.disk.Close()
		terrRemove := os.Remove(name)
		l.disk = nil
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(terrRemove)
	}
	return nil
}

// encodeChunk encodes all rows of chk into a payload and returns the payload
// together with the offset of each row relative to the payload start.
func encodeChunk(chk *Chunk) (payload []byte, rowOffs []int64) {
	numRows := chk.NumRows()
	rowOffs = make([]int64, numRows)
	var lenBuf [4]byte
	for i := 0; i < numRows; i++ {
		rowOffs[i] = int64(len(payload))
		for _, col := range chk.columns {
			if col.IsNull(i) {
				payload = append(payload, 0)
				continue
			}
			payload = append(payload, 1)
			raw := col.getRaw(i)
			if !col.isFixed() {
				binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
				payload = append(payload, lenBuf[:]...)
			}
			payload = append(payload, raw...)
		}
	}
	return payload, rowOffs
}

// decodeRows decodes numRows rows from buf into chk and returns the remaining bytes.
func decodeRows(chk *Chunk, buf []byte, numRows int, fieldTypes []*types.FieldType) ([]byte, error) {
	for i := 0; i < numRows; i++ {
		for colIdx, ft := range fieldTypes {
			if len(buf) < 1 {
				return nil, errors.New("spill file truncated")
			}
			notNull := buf[0]
			buf = buf[1:]
			if notNull == 0 {
				chk.AppendNull(colIdx)
				continue
			}
			elemLen := getFixedLen(ft)
			if elemLen == varElemLen {
				if len(buf) < 4 {
					return nil, errors.New("spill file truncated")
				}
				elemLen = int(binary.LittleEndian.Uint32(buf))
				buf = buf[4:]
			}
			if len(buf) < elemLen {
				return nil, errors.New("spill file truncated")
			}
			chk.columns[colIdx].appendRaw(buf[:elemLen], true)
			buf = buf[elemLen:]
		}
	}
	return buf, nil
}
