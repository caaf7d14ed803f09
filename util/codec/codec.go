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

package codec

import (
	"encoding/binary"
	"math"

	"github.com/pingcap/errors"

	"github.com/cascadedb/cascade/types"
	"github.com/cascadedb/cascade/util/chunk"
	"github.com/cascadedb/cascade/util/collate"
)

// Value type flags used in the encoded key. Each column value is encoded as
// one flag byte followed by the value payload, so keys of heterogeneous
// column lists never alias each other.
const (
	nilFlag   byte = 0
	bytesFlag byte = 1
	intFlag   byte = 3
	floatFlag byte = 5
)

// HashChunkRow appends the encoded values of the chosen key columns of row to
// b and returns it along with whether any key column is NULL. NULL columns are
// encoded with nilFlag so the caller may still hash rows with NULL keys when
// it needs to route them.
func HashChunkRow(collators []collate.Collator, b []byte, row chunk.Row, allTypes []*types.FieldType, colIdx []int) (_ []byte, hasNull bool, err error) {
	for i, idx := range colIdx {
		if row.IsNull(idx) {
			hasNull = true
			b = append(b, nilFlag)
			continue
		}
		ft := allTypes[idx]
		switch ft.Tp {
		case types.TypeLonglong, types.TypeTiny:
			var v int64
			if ft.Tp == types.TypeTiny {
				v = int64(row.GetTiny(idx))
			} else {
				v = row.GetInt64(idx)
			}
			b = append(b, intFlag)
			b = appendUint64(b, uint64(v))
		case types.TypeDouble:
			b = append(b, floatFlag)
			b = appendUint64(b, math.Float64bits(row.GetFloat64(idx)))
		case types.TypeVarchar:
			key := row.GetBytes(idx)
			if collators[i] != nil {
				key = collators[i].Key(row.GetString(idx))
			}
			b = append(b, bytesFlag)
			b = appendUint64(b, uint64(len(key)))
			b = append(b, key...)
		default:
			return b, hasNull, errors.Errorf("unsupported key column type %d", ft.Tp)
		}
	}
	return b, hasNull, nil
}

func appendUint64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

// EqualChunkRow returns whether row1 and row2 are equal on their key columns.
// String columns are compared under their collation.
func EqualChunkRow(collators []collate.Collator,
	row1 chunk.Row, allTypes1 []*types.FieldType, colIdx1 []int,
	row2 chunk.Row, allTypes2 []*types.FieldType, colIdx2 []int) (bool, error) {
	if len(colIdx1) != len(colIdx2) {
		return false, errors.New("unequal length of key column lists")
	}
	for i := range colIdx1 {
		idx1, idx2 := colIdx1[i], colIdx2[i]
		if allTypes1[idx1].Tp != allTypes2[idx2].Tp {
			return false, errors.Errorf("mismatched key column types %d and %d", allTypes1[idx1].Tp, allTypes2[idx2].Tp)
		}
		null1, null2 := row1.IsNull(idx1), row2.IsNull(idx2)
		if null1 || null2 {
			if null1 != null2 {
				return false, nil
			}
			continue
		}
		switch allTypes1[idx1].Tp {
		case types.TypeLonglong:
			if row1.GetInt64(idx1) != row2.GetInt64(idx2) {
				return false, nil
			}
		case types.TypeTiny:
			if row1.GetTiny(idx1) != row2.GetTiny(idx2) {
				return false, nil
			}
		case types.TypeDouble:
			if row1.GetFloat64(idx1) != row2.GetFloat64(idx2) {
				return false, nil
			}
		case types.TypeVarchar:
			if collators[i] != nil {
				if collators[i].Compare(row1.GetString(idx1), row2.GetString(idx2)) != 0 {
					return false, nil
				}
			} else if row1.GetString(idx1) != row2.GetString(idx2) {
				return false, nil
			}
		default:
			return false, errors.Errorf("unsupported key column type %d", allTypes1[idx1].Tp)
		}
	}
	return true, nil
}
