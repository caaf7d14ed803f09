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

// JoinKind identifies the kind of a hash join. It is immutable once the join
// operator is constructed, all behavior selection happens through the
// predicate functions below instead of per-kind operator types.
type JoinKind int

// Join kinds.
const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	FullJoin
	CrossJoin
	CrossLeftJoin
	CrossRightJoin
	AntiJoin
	CrossAntiJoin
	LeftSemiJoin
	LeftAntiJoin
	CrossLeftSemiJoin
	CrossLeftAntiJoin
	NullAwareAntiJoin
	NullAwareLeftSemiJoin
	NullAwareLeftAntiJoin
)

// String implements fmt.Stringer.
func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "inner join"
	case LeftJoin:
		return "left outer join"
	case RightJoin:
		return "right outer join"
	case FullJoin:
		return "full outer join"
	case CrossJoin:
		return "cross join"
	case CrossLeftJoin:
		return "cross left outer join"
	case CrossRightJoin:
		return "cross right outer join"
	case AntiJoin:
		return "anti join"
	case CrossAntiJoin:
		return "cross anti join"
	case LeftSemiJoin:
		return "left semi join"
	case LeftAntiJoin:
		return "left anti semi join"
	case CrossLeftSemiJoin:
		return "cross left semi join"
	case CrossLeftAntiJoin:
		return "cross left anti semi join"
	case NullAwareAntiJoin:
		return "null-aware anti join"
	case NullAwareLeftSemiJoin:
		return "null-aware left semi join"
	case NullAwareLeftAntiJoin:
		return "null-aware left anti semi join"
	}
	return "unsupported join kind"
}

// Strictness controls how many matches are kept per probe row.
type Strictness int

// Join strictness.
const (
	// Any keeps at most one match per probe row.
	Any Strictness = iota
	// All keeps every match, probe rows may replicate.
	All
)

// String implements fmt.Stringer.
func (s Strictness) String() string {
	if s == Any {
		return "any"
	}
	return "all"
}

// getFullness returns whether the join needs to track, per build side row,
// whether it was ever matched, so unmatched build rows can be emitted after
// the probe phase ends.
func getFullness(kind JoinKind) bool {
	return kind == RightJoin || kind == CrossRightJoin || kind == FullJoin
}

func isLeftJoin(kind JoinKind) bool {
	return kind == LeftJoin || kind == CrossLeftJoin
}

func isRightJoin(kind JoinKind) bool {
	return kind == RightJoin || kind == CrossRightJoin
}

func isInnerJoin(kind JoinKind) bool {
	return kind == InnerJoin || kind == CrossJoin
}

func isAntiJoin(kind JoinKind) bool {
	return kind == AntiJoin || kind == CrossAntiJoin || kind == NullAwareAntiJoin
}

func isCrossJoin(kind JoinKind) bool {
	return kind == CrossJoin || kind == CrossLeftJoin || kind == CrossRightJoin ||
		kind == CrossAntiJoin || kind == CrossLeftSemiJoin || kind == CrossLeftAntiJoin
}

// isLeftSemiFamily returns whether the join emits at most one row per probe
// row carrying a match flag column instead of expanding the probe side.
func isLeftSemiFamily(kind JoinKind) bool {
	return kind == LeftSemiJoin || kind == LeftAntiJoin ||
		kind == CrossLeftSemiJoin || kind == CrossLeftAntiJoin ||
		kind == NullAwareLeftSemiJoin || kind == NullAwareLeftAntiJoin
}

// isNullAwareSemiFamily returns whether match evaluation uses three-valued
// logic because NULL join keys yield an unknown instead of a non-match.
func isNullAwareSemiFamily(kind JoinKind) bool {
	return kind == NullAwareAntiJoin || kind == NullAwareLeftSemiJoin || kind == NullAwareLeftAntiJoin
}

// isSemiFamily returns whether the join is any semi or anti variant. These
// never expand the probe side row count.
func isSemiFamily(kind JoinKind) bool {
	return isAntiJoin(kind) || isLeftSemiFamily(kind)
}

// mayProbeSideExpandedAfterJoin returns whether the probe side row count can
// grow after joining. Only All strictness combined with a kind that can
// produce multiple matches per probe row expands.
func mayProbeSideExpandedAfterJoin(kind JoinKind, strictness Strictness) bool {
	if strictness == Any {
		return false
	}
	if isSemiFamily(kind) {
		return false
	}
	return true
}
