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

// Index manages the map between raw IDs and dense indices. A raw ID is a user ID or
// item ID as it appears in the source data. The dense index is the zero-based position
// assigned in observation order and is used as a matrix coordinate.
type Index struct {
	Numbers map[uint32]int32 // raw ID -> dense index
	Names   []uint32         // dense index -> raw ID
}

// NotId represents an ID doesn't exist.
const NotId = int32(-1)

// NewIndex creates an Index. The capacity is a hint for the expected number of IDs.
func NewIndex(capacity int) *Index {
	return &Index{
		Numbers: make(map[uint32]int32, capacity),
		Names:   make([]uint32, 0, capacity),
	}
}

// Len returns the number of indexed names.
func (idx *Index) Len() int32 {
	if idx == nil {
		return 0
	}
	return int32(len(idx.Names))
}

// Add adds a raw ID to the index and returns its dense index. Adding an ID twice
// returns the index assigned the first time.
func (idx *Index) Add(name uint32) int32 {
	if number, exist := idx.Numbers[name]; exist {
		return number
	}
	number := int32(len(idx.Names))
	idx.Numbers[name] = number
	idx.Names = append(idx.Names, name)
	return number
}

// Contains returns true if the raw ID has been added.
func (idx *Index) Contains(name uint32) bool {
	if idx == nil {
		return false
	}
	_, exist := idx.Numbers[name]
	return exist
}

// ToNumber converts a raw ID to a dense index.
func (idx *Index) ToNumber(name uint32) (int32, bool) {
	if idx == nil {
		return NotId, false
	}
	if number, exist := idx.Numbers[name]; exist {
		return number, true
	}
	return NotId, false
}

// ToName converts a dense index to a raw ID.
func (idx *Index) ToName(index int32) uint32 {
	return idx.Names[index]
}

// GetNames returns all names in current index.
func (idx *Index) GetNames() []uint32 {
	if idx == nil {
		return nil
	}
	return idx.Names
}
