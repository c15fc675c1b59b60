// Copyright 2026 gorse Project Authors
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

package matrix

import (
	"github.com/gorse-io/neighbor/base"
	"github.com/juju/errors"
)

var (
	// ErrCapacityExceeded is returned when a new ID would get a dense index outside the
	// fixed shape of the matrix. It means the counts used to size the matrix do not match
	// the ratings fed into it.
	ErrCapacityExceeded = errors.New("matrix capacity exceeded")
	// ErrFrozen is returned by mutations after Freeze.
	ErrFrozen = errors.New("matrix is frozen")
)

// Matrix is a users × items sparse rating matrix with a fixed shape. Only non-zero
// ratings are stored. Rows are kept sorted by item index.
//
// A Matrix is filled by a single goroutine and then frozen. A frozen matrix is never
// mutated again, so it can be shared by any number of readers without locking.
type Matrix struct {
	numUsers int
	numItems int
	users    *base.Index
	items    *base.Index
	rows     []*base.SparseVector
	count    int
	frozen   bool
}

// NewMatrix creates an empty matrix of shape (numUsers, numItems).
func NewMatrix(numUsers, numItems int) (*Matrix, error) {
	if numUsers < 1 || numItems < 1 {
		return nil, errors.NotValidf("matrix shape (%d, %d)", numUsers, numItems)
	}
	return &Matrix{
		numUsers: numUsers,
		numItems: numItems,
		users:    base.NewIndex(numUsers),
		items:    base.NewIndex(numItems),
		rows:     make([]*base.SparseVector, 0, numUsers),
	}, nil
}

// Shape returns the capacities (users, items).
func (m *Matrix) Shape() (int, int) {
	return m.numUsers, m.numItems
}

// CountUsers returns the number of registered users.
func (m *Matrix) CountUsers() int {
	return int(m.users.Len())
}

// CountItems returns the number of registered items.
func (m *Matrix) CountItems() int {
	return int(m.items.Len())
}

// CountRatings returns the number of stored (non-zero) ratings.
func (m *Matrix) CountRatings() int {
	return m.count
}

// Users returns raw user IDs in dense index order.
func (m *Matrix) Users() []uint32 {
	return m.users.GetNames()
}

// Items returns raw item IDs in dense index order.
func (m *Matrix) Items() []uint32 {
	return m.items.GetNames()
}

// SetUser registers a raw user ID and returns its dense index.
func (m *Matrix) SetUser(userId uint32) (int32, error) {
	if m.frozen {
		return base.NotId, errors.Trace(ErrFrozen)
	}
	if number, ok := m.users.ToNumber(userId); ok {
		return number, nil
	}
	if int(m.users.Len()) >= m.numUsers {
		return base.NotId, errors.Annotatef(ErrCapacityExceeded, "user %d does not fit in %d rows", userId, m.numUsers)
	}
	m.rows = append(m.rows, base.NewSparseVector())
	return m.users.Add(userId), nil
}

// SetItem registers a raw item ID and returns its dense index.
func (m *Matrix) SetItem(itemId uint32) (int32, error) {
	if m.frozen {
		return base.NotId, errors.Trace(ErrFrozen)
	}
	if number, ok := m.items.ToNumber(itemId); ok {
		return number, nil
	}
	if int(m.items.Len()) >= m.numItems {
		return base.NotId, errors.Annotatef(ErrCapacityExceeded, "item %d does not fit in %d columns", itemId, m.numItems)
	}
	return m.items.Add(itemId), nil
}

// SetRating stores a rating of a registered user for a registered item. A rating of
// exactly zero means "not rated" and is ignored. A later rating at the same coordinate
// replaces the earlier one.
func (m *Matrix) SetRating(userId, itemId uint32, rating float32) error {
	if m.frozen {
		return errors.Trace(ErrFrozen)
	}
	if rating == 0 {
		return nil
	}
	userIndex, ok := m.users.ToNumber(userId)
	if !ok {
		return errors.NotFoundf("user %d", userId)
	}
	itemIndex, ok := m.items.ToNumber(itemId)
	if !ok {
		return errors.NotFoundf("item %d", itemId)
	}
	row := m.rows[userIndex]
	before := row.Len()
	row.Set(itemIndex, rating)
	m.count += row.Len() - before
	return nil
}

// Freeze ends the construction phase.
func (m *Matrix) Freeze() {
	m.frozen = true
}

// Frozen returns true after Freeze.
func (m *Matrix) Frozen() bool {
	return m.frozen
}

// UserIndex returns the dense index of a raw user ID.
func (m *Matrix) UserIndex(userId uint32) (int32, bool) {
	return m.users.ToNumber(userId)
}

// ItemIndex returns the dense index of a raw item ID.
func (m *Matrix) ItemIndex(itemId uint32) (int32, bool) {
	return m.items.ToNumber(itemId)
}

// UserName returns the raw user ID of a dense user index.
func (m *Matrix) UserName(userIndex int32) uint32 {
	return m.users.ToName(userIndex)
}

// ItemName returns the raw item ID of a dense item index.
func (m *Matrix) ItemName(itemIndex int32) uint32 {
	return m.items.ToName(itemIndex)
}

// Row returns the ratings of a user as a sparse vector over item indices. The vector is
// empty for users without ratings and for indices out of range. The returned vector is
// shared with the matrix and must not be modified.
func (m *Matrix) Row(userIndex int32) *base.SparseVector {
	if userIndex < 0 || int(userIndex) >= len(m.rows) {
		return base.NewSparseVector()
	}
	return m.rows[userIndex]
}

// UserRow returns the ratings of a raw user ID.
func (m *Matrix) UserRow(userId uint32) (*base.SparseVector, bool) {
	userIndex, ok := m.users.ToNumber(userId)
	if !ok {
		return nil, false
	}
	return m.Row(userIndex), true
}

// Similarity returns the dot product between two rows. It is not normalized, so it grows
// with the number and the size of ratings.
func Similarity(a, b *base.SparseVector) float32 {
	return base.Dot(a, b)
}
