// Copyright © 2021 AMIS Technologies
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rangeset implements a canonical set of disjoint half-open integer
// ranges: the index algebra that backs every arena allocation, assignment,
// and decode payload in the correlated store.
package rangeset

import "sort"

// Range is a half-open interval [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) len() int { return r.End - r.Start }

// RangeSet is a canonicalized (sorted, merged, disjoint) set of Ranges.
type RangeSet struct {
	ranges []Range
}

// New builds a canonical RangeSet from arbitrary, possibly overlapping
// ranges.
func New(ranges ...Range) *RangeSet {
	rs := &RangeSet{}
	rs.Insert(ranges...)
	return rs
}

// Insert adds ranges to the set, re-canonicalizing.
func (rs *RangeSet) Insert(ranges ...Range) {
	for _, r := range ranges {
		if r.Start < r.End {
			rs.ranges = append(rs.ranges, r)
		}
	}
	rs.normalize()
}

func (rs *RangeSet) normalize() {
	if len(rs.ranges) == 0 {
		return
	}
	sort.Slice(rs.ranges, func(i, j int) bool {
		return rs.ranges[i].Start < rs.ranges[j].Start
	})
	merged := rs.ranges[:1]
	for _, r := range rs.ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	rs.ranges = merged
}

// Ranges returns the canonical, ascending-start-order ranges. The caller
// must not mutate the returned slice.
func (rs *RangeSet) Ranges() []Range {
	return rs.ranges
}

// Len returns the total number of covered indices.
func (rs *RangeSet) Len() int {
	total := 0
	for _, r := range rs.ranges {
		total += r.len()
	}
	return total
}

// IsEmpty reports whether the set covers no indices.
func (rs *RangeSet) IsEmpty() bool {
	return len(rs.ranges) == 0
}

// Contains reports whether idx is covered.
func (rs *RangeSet) Contains(idx int) bool {
	i := sort.Search(len(rs.ranges), func(i int) bool { return rs.ranges[i].End > idx })
	return i < len(rs.ranges) && rs.ranges[i].Start <= idx
}

// Equal reports whether two range sets cover exactly the same indices.
func (rs *RangeSet) Equal(other *RangeSet) bool {
	if len(rs.ranges) != len(other.ranges) {
		return false
	}
	for i, r := range rs.ranges {
		if r != other.ranges[i] {
			return false
		}
	}
	return true
}

// Union returns a new RangeSet covering the indices of both inputs.
func Union(a, b *RangeSet) *RangeSet {
	out := New()
	out.Insert(a.ranges...)
	out.Insert(b.ranges...)
	return out
}

// Difference returns the indices in a that are not in b.
func Difference(a, b *RangeSet) *RangeSet {
	out := New()
	for _, r := range a.ranges {
		cur := r.Start
		for _, s := range b.ranges {
			if s.End <= cur || s.Start >= r.End {
				continue
			}
			if s.Start > cur {
				out.Insert(Range{cur, s.Start})
			}
			if s.End > cur {
				cur = s.End
			}
		}
		if cur < r.End {
			out.Insert(Range{cur, r.End})
		}
	}
	return out
}

// Subset reports whether every index of a is contained in b.
func Subset(a, b *RangeSet) bool {
	return Difference(a, b).IsEmpty()
}

// Disjoint reports whether a and b share no index.
func Disjoint(a, b *RangeSet) bool {
	for _, r := range a.ranges {
		for _, s := range b.ranges {
			if r.Start < s.End && s.Start < r.End {
				return false
			}
		}
	}
	return true
}

// Iter calls fn for every index in the set in ascending order. Iteration
// stops early if fn returns false.
func (rs *RangeSet) Iter(fn func(idx int) bool) {
	for _, r := range rs.ranges {
		for i := r.Start; i < r.End; i++ {
			if !fn(i) {
				return
			}
		}
	}
}

// Indices materializes the set as a sorted slice of indices.
func (rs *RangeSet) Indices() []int {
	out := make([]int, 0, rs.Len())
	rs.Iter(func(idx int) bool {
		out = append(out, idx)
		return true
	})
	return out
}
