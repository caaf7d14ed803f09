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

package collate

import (
	"strings"

	"github.com/cascadedb/cascade/types"
)

// Collator provides functionality for comparing strings for a given collation.
type Collator interface {
	// Compare returns an integer comparing the two strings. The result will be
	// 0 if a == b, -1 if a < b, and +1 if a > b.
	Compare(a, b string) int
	// Key returns the collation key for str, the returned slice is safe to
	// retain. If the collation of two strings is equal, the key of the two
	// strings is equal as well.
	Key(str string) []byte
}

type binCollator struct{}

// Compare implements Collator interface.
func (*binCollator) Compare(a, b string) int {
	return strings.Compare(a, b)
}

// Key implements Collator interface.
func (*binCollator) Key(str string) []byte {
	return []byte(str)
}

// generalCICollator is the case-insensitive collator. Trailing spaces are
// insignificant, matching the PAD SPACE behavior of the storage layer.
type generalCICollator struct{}

// Compare implements Collator interface.
func (*generalCICollator) Compare(a, b string) int {
	return strings.Compare(ciKey(a), ciKey(b))
}

// Key implements Collator interface.
func (*generalCICollator) Key(str string) []byte {
	return []byte(ciKey(str))
}

func ciKey(s string) string {
	return strings.ToUpper(strings.TrimRight(s, " "))
}

var (
	binCollatorInstance       = &binCollator{}
	generalCICollatorInstance = &generalCICollator{}
)

// GetCollator gets the collator according to the collation name. Unknown
// names fall back to the binary collator.
func GetCollator(collate string) Collator {
	switch collate {
	case types.CollationGeneralCI:
		return generalCICollatorInstance
	default:
		return binCollatorInstance
	}
}

// GetCollators resolves one collator per field type. Non-string columns get a
// nil slot, the codec ignores collation for them.
func GetCollators(fts []*types.FieldType) []Collator {
	collators := make([]Collator, len(fts))
	for i, ft := range fts {
		if ft.IsString() {
			collators[i] = GetCollator(ft.Collate)
		}
	}
	return collators
}
