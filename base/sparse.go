// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import "sort"

// SparseVector is the data structure for the sparse vector. Entries are kept sorted
// by index, so iteration always visits indices in ascending order.
type SparseVector struct {
	Indices []int32
	Values  []float32
}

// NewSparseVector creates a SparseVector.
func NewSparseVector() *SparseVector {
	return &SparseVector{
		Indices: make([]int32, 0),
		Values:  make([]float32, 0),
	}
}

// Len returns the number of stored entries.
func (vec *SparseVector) Len() int {
	if vec == nil {
		return 0
	}
	return len(vec.Values)
}

func (vec *SparseVector) search(index int32) int {
	return sort.Search(len(vec.Indices), func(i int) bool {
		return vec.Indices[i] >= index
	})
}

// Set stores a value at the index. An existing value at the same index is overwritten.
func (vec *SparseVector) Set(index int32, value float32) {
	i := vec.search(index)
	if i < len(vec.Indices) && vec.Indices[i] == index {
		vec.Values[i] = value
		return
	}
	// Fast path for indices arriving in ascending order
	if i == len(vec.Indices) {
		vec.Indices = append(vec.Indices, index)
		vec.Values = append(vec.Values, value)
		return
	}
	vec.Indices = append(vec.Indices, 0)
	vec.Values = append(vec.Values, 0)
	copy(vec.Indices[i+1:], vec.Indices[i:])
	copy(vec.Values[i+1:], vec.Values[i:])
	vec.Indices[i] = index
	vec.Values[i] = value
}

// Get returns the value at the index.
func (vec *SparseVector) Get(index int32) (float32, bool) {
	if vec == nil {
		return 0, false
	}
	i := vec.search(index)
	if i < len(vec.Indices) && vec.Indices[i] == index {
		return vec.Values[i], true
	}
	return 0, false
}

// ForEach iterates entries in the sparse vector in ascending index order.
func (vec *SparseVector) ForEach(f func(i int, index int32, value float32)) {
	if vec == nil {
		return
	}
	for i := range vec.Indices {
		f(i, vec.Indices[i], vec.Values[i])
	}
}

// ForIntersection iterates entries in the intersection of two vectors. Both vectors are
// sorted by indices, so common indices are found in linear time.
func (vec *SparseVector) ForIntersection(other *SparseVector, f func(index int32, a, b float32)) {
	i, j := 0, 0
	for i < vec.Len() && j < other.Len() {
		if vec.Indices[i] == other.Indices[j] {
			f(vec.Indices[i], vec.Values[i], other.Values[j])
			i++
			j++
		} else if vec.Indices[i] < other.Indices[j] {
			i++
		} else {
			j++
		}
	}
}

// Clone returns a deep copy of the vector.
func (vec *SparseVector) Clone() *SparseVector {
	if vec == nil {
		return NewSparseVector()
	}
	return &SparseVector{
		Indices: append(make([]int32, 0, len(vec.Indices)), vec.Indices...),
		Values:  append(make([]float32, 0, len(vec.Values)), vec.Values...),
	}
}

// Dot computes the dot product between a pair of sparse vectors. Indices present in
// only one vector contribute zero. The result is not normalized by vector length, so
// users with more or larger ratings get larger scores.
func Dot(a, b *SparseVector) float32 {
	var sum float32
	a.ForIntersection(b, func(_ int32, x, y float32) {
		sum += x * y
	})
	return sum
}
