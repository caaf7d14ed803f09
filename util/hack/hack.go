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

package hack

import "unsafe"

// String converts a byte slice to a string without a memory allocation.
// The returned string shares the backing array of b, the caller must make
// sure b is never modified afterwards.
func String(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// Slice converts a string to a byte slice without a memory allocation.
// The returned slice must not be modified.
func Slice(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

const (
	// LoadFactorDen is the denominator of the Go runtime map load factor.
	LoadFactorDen = 2
	// LoadFactorNum is the numerator of the Go runtime map load factor.
	LoadFactorNum = 13
	// DefBucketMemoryUsageForMapIntToPtr is the estimated memory usage of
	// one bucket in a map[uint64]unsafe.Pointer shaped map.
	DefBucketMemoryUsageForMapIntToPtr = 8*(1+8+8) + 16
)
