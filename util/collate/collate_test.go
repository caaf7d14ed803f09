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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cascadedb/cascade/types"
)

func TestBinCollator(t *testing.T) {
	c := GetCollator(types.CollationBin)
	require.Equal(t, 0, c.Compare("abc", "abc"))
	require.Equal(t, -1, c.Compare("ABC", "abc"))
	require.Equal(t, 1, c.Compare("abd", "abc"))
	require.Equal(t, []byte("abc"), c.Key("abc"))
	require.NotEqual(t, c.Key("abc"), c.Key("ABC"))
}

func TestGeneralCICollator(t *testing.T) {
	c := GetCollator(types.CollationGeneralCI)
	require.Equal(t, 0, c.Compare("abc", "ABC"))
	require.Equal(t, 0, c.Compare("abc", "abc   "))
	require.Equal(t, -1, c.Compare("abc", "abd"))
	require.Equal(t, c.Key("abc"), c.Key("ABC  "))
	require.NotEqual(t, c.Key("abc"), c.Key("abd"))
}

func TestGetCollatorFallback(t *testing.T) {
	require.Same(t, GetCollator(types.CollationBin), GetCollator("no_such_collation"))
}

func TestGetCollators(t *testing.T) {
	strTp := types.NewFieldType(types.TypeVarchar)
	strTp.Collate = types.CollationGeneralCI
	fts := []*types.FieldType{
		types.NewFieldType(types.TypeLonglong),
		strTp,
	}
	collators := GetCollators(fts)
	require.Len(t, collators, 2)
	require.Nil(t, collators[0])
	require.NotNil(t, collators[1])
	require.Equal(t, 0, collators[1].Compare("a", "A"))
}
