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
	"testing"

	"github.com/stretchr/testify/require"
)

var allJoinKinds = []JoinKind{
	InnerJoin, LeftJoin, RightJoin, FullJoin,
	CrossJoin, CrossLeftJoin, CrossRightJoin,
	AntiJoin, CrossAntiJoin,
	LeftSemiJoin, LeftAntiJoin, CrossLeftSemiJoin, CrossLeftAntiJoin,
	NullAwareAntiJoin, NullAwareLeftSemiJoin, NullAwareLeftAntiJoin,
}

func TestGetFullness(t *testing.T) {
	for _, kind := range allJoinKinds {
		want := kind == RightJoin || kind == CrossRightJoin || kind == FullJoin
		require.Equal(t, want, getFullness(kind), "kind %v", kind)
	}
}

func TestKindFamilyExclusive(t *testing.T) {
	// Every kind belongs to exactly one of the output-shape families.
	for _, kind := range allJoinKinds {
		families := 0
		if isInnerJoin(kind) {
			families++
		}
		if isLeftJoin(kind) {
			families++
		}
		if isRightJoin(kind) {
			families++
		}
		if kind == FullJoin {
			families++
		}
		if isAntiJoin(kind) && !isLeftSemiFamily(kind) {
			families++
		}
		if isLeftSemiFamily(kind) {
			families++
		}
		require.Equal(t, 1, families, "kind %v", kind)
	}
}

func TestCrossPredicate(t *testing.T) {
	crosses := map[JoinKind]bool{
		CrossJoin: true, CrossLeftJoin: true, CrossRightJoin: true,
		CrossAntiJoin: true, CrossLeftSemiJoin: true, CrossLeftAntiJoin: true,
	}
	for _, kind := range allJoinKinds {
		require.Equal(t, crosses[kind], isCrossJoin(kind), "kind %v", kind)
	}
}

func TestNullAwareSemiFamily(t *testing.T) {
	for _, kind := range allJoinKinds {
		want := kind == NullAwareAntiJoin || kind == NullAwareLeftSemiJoin || kind == NullAwareLeftAntiJoin
		require.Equal(t, want, isNullAwareSemiFamily(kind), "kind %v", kind)
		if want {
			require.True(t, isSemiFamily(kind))
		}
	}
}

func TestMayProbeSideExpandedAfterJoin(t *testing.T) {
	for _, kind := range allJoinKinds {
		require.False(t, mayProbeSideExpandedAfterJoin(kind, Any), "kind %v", kind)
		want := !isSemiFamily(kind)
		require.Equal(t, want, mayProbeSideExpandedAfterJoin(kind, All), "kind %v", kind)
	}
}
