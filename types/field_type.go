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

package types

// Column type codes used by the execution layer. The storage and network
// layers own richer type systems, the executor only needs the physical
// representation of a column.
const (
	// TypeLonglong is a 64-bit signed integer column.
	TypeLonglong byte = iota + 1
	// TypeDouble is a 64-bit float column.
	TypeDouble
	// TypeVarchar is a variable length string column.
	TypeVarchar
	// TypeTiny is an 8-bit integer column, also used for boolean flags.
	TypeTiny
)

// FieldType describes the physical type of a column.
type FieldType struct {
	Tp      byte
	Flen    int
	Collate string
}

// UnspecifiedLength is an unspecified length for Flen.
const UnspecifiedLength = -1

// NewFieldType returns a FieldType with the given type code and default
// attributes.
func NewFieldType(tp byte) *FieldType {
	ft := &FieldType{
		Tp:   tp,
		Flen: UnspecifiedLength,
	}
	if tp == TypeVarchar {
		ft.Collate = CollationBin
	}
	return ft
}

// Collation names understood by util/collate.
const (
	CollationBin       = "binary"
	CollationGeneralCI = "utf8mb4_general_ci"
)

// IsString reports whether the column holds variable length string data.
func (ft *FieldType) IsString() bool {
	return ft.Tp == TypeVarchar
}

// Clone returns a copy of ft.
func (ft *FieldType) Clone() *FieldType {
	ret := *ft
	return &ret
}
