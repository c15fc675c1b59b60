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

package recommend

import (
	"math/rand"
	"testing"

	"github.com/gorse-io/neighbor/matrix"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rating struct {
	userId uint32
	itemId uint32
	value  float32
}

func newTestMatrix(t *testing.T, users, items []uint32, ratings []rating) *matrix.Matrix {
	m, err := matrix.NewMatrix(len(users)+1, len(items)+1)
	require.NoError(t, err)
	for _, userId := range users {
		_, err = m.SetUser(userId)
		require.NoError(t, err)
	}
	for _, itemId := range items {
		_, err = m.SetItem(itemId)
		require.NoError(t, err)
	}
	for _, r := range ratings {
		require.NoError(t, m.SetRating(r.userId, r.itemId, r.value))
	}
	m.Freeze()
	return m
}

func newTestRecommender(t *testing.T, users, items []uint32, ratings []rating) *Recommender {
	r, err := NewRecommender(newTestMatrix(t, users, items, ratings), 1)
	require.NoError(t, err)
	return r
}

func TestNewRecommender(t *testing.T) {
	m, err := matrix.NewMatrix(1, 1)
	require.NoError(t, err)
	_, err = NewRecommender(m, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewRecommender(nil, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
	m.Freeze()
	r, err := NewRecommender(m, 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, r.jobs)
	assert.Same(t, m, r.Matrix())
}

func TestRecommender_Neighbor(t *testing.T) {
	r := newTestRecommender(t, []uint32{1, 2, 3}, []uint32{1}, []rating{
		{1, 1, 3.14},
		{2, 1, 2.71},
		{3, 1, 1.41},
	})
	neighbor, err := r.Neighbor(1)
	assert.NoError(t, err)
	assert.Equal(t, uint32(2), neighbor.UserId)
	assert.InDelta(t, 2.71*3.14, neighbor.Similarity, 1e-5)
	neighbor, err = r.Neighbor(3)
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), neighbor.UserId)
}

func TestRecommender_Recommend(t *testing.T) {
	r := newTestRecommender(t, []uint32{1, 2, 3}, []uint32{1, 2, 3}, []rating{
		{1, 1, 3.14},
		{1, 2, 2.71},
		{1, 3, 1.41},
		{2, 2, 3.14},
		{2, 3, 1.41},
		{3, 2, 2.71},
		{3, 3, 3.14},
	})
	neighbor, err := r.Neighbor(1)
	assert.NoError(t, err)
	assert.Equal(t, uint32(3), neighbor.UserId)
	items, err := r.Recommend(1)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{3, 2}, items)
	// truncated
	items, err = r.RecommendN(1, 1)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{3}, items)
	items, err = r.RecommendN(1, 0)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{3, 2}, items)
}

func TestRecommender_UnknownUser(t *testing.T) {
	r := newTestRecommender(t, []uint32{1, 2}, []uint32{1}, []rating{{1, 1, 1}, {2, 1, 1}})
	_, err := r.Recommend(100)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.False(t, errors.Is(err, ErrNoRecommendation))
	_, err = r.Neighbor(100)
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = r.RecommendN(100, 10)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestRecommender_SingleUser(t *testing.T) {
	r := newTestRecommender(t, []uint32{1}, []uint32{1}, []rating{{1, 1, 5}})
	_, err := r.Recommend(1)
	assert.True(t, errors.Is(err, ErrNoRecommendation))
	assert.False(t, errors.Is(err, errors.NotFound))
	_, err = r.Neighbor(1)
	assert.True(t, errors.Is(err, ErrNoRecommendation))
}

func TestRecommender_DisjointUsers(t *testing.T) {
	// zero similarity is still a neighbor
	r := newTestRecommender(t, []uint32{1, 2}, []uint32{1, 2}, []rating{{1, 1, 5}, {2, 2, 4}})
	neighbor, err := r.Neighbor(1)
	assert.NoError(t, err)
	assert.Equal(t, uint32(2), neighbor.UserId)
	assert.Zero(t, neighbor.Similarity)
	items, err := r.Recommend(1)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{2}, items)
}

func TestRecommender_NeighborWithoutRatings(t *testing.T) {
	r := newTestRecommender(t, []uint32{1, 2}, []uint32{1}, []rating{{1, 1, 5}})
	_, err := r.Recommend(1)
	assert.True(t, errors.Is(err, ErrNoRecommendation))
}

func TestRecommender_NegativeRatings(t *testing.T) {
	r := newTestRecommender(t, []uint32{1, 2}, []uint32{1, 2, 3}, []rating{
		{1, 1, 1},
		{2, 1, 2},
		{2, 2, -3},
		{2, 3, 1},
	})
	items, err := r.Recommend(1)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, items)
	// only negative ratings
	r = newTestRecommender(t, []uint32{1, 2}, []uint32{1}, []rating{{1, 1, 1}, {2, 1, -1}})
	_, err = r.Recommend(1)
	assert.True(t, errors.Is(err, ErrNoRecommendation))
}

func TestRecommender_TieBreak(t *testing.T) {
	// users 2 and 3 have the same similarity to user 1, the first one wins
	r := newTestRecommender(t, []uint32{1, 2, 3}, []uint32{1, 2, 3}, []rating{
		{1, 1, 2},
		{2, 1, 1},
		{2, 2, 5},
		{3, 1, 1},
		{3, 3, 5},
	})
	neighbor, err := r.Neighbor(1)
	assert.NoError(t, err)
	assert.Equal(t, uint32(2), neighbor.UserId)
	// items with equal ratings keep index order
	r = newTestRecommender(t, []uint32{1, 2}, []uint32{30, 10, 20}, []rating{
		{1, 10, 1},
		{2, 20, 4},
		{2, 10, 4},
		{2, 30, 4},
	})
	items, err := r.Recommend(1)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{30, 10, 20}, items)
}

func TestRecommender_Parallel(t *testing.T) {
	const numUsers, numItems = 500, 50
	rng := rand.New(rand.NewSource(0))
	users := make([]uint32, numUsers)
	for i := range users {
		users[i] = uint32(i * 3)
	}
	items := make([]uint32, numItems)
	for i := range items {
		items[i] = uint32(i*7 + 1)
	}
	var ratings []rating
	for _, userId := range users {
		for _, itemId := range items {
			if rng.Float32() < 0.1 {
				// integer ratings produce many ties
				ratings = append(ratings, rating{userId, itemId, float32(rng.Intn(3) + 1)})
			}
		}
	}
	m := newTestMatrix(t, users, items, ratings)
	sequential, err := NewRecommender(m, 1)
	require.NoError(t, err)
	concurrent, err := NewRecommender(m, 4)
	require.NoError(t, err)
	concurrent.batchSize = 7
	for _, userId := range users {
		expected, expectedErr := sequential.Neighbor(userId)
		actual, actualErr := concurrent.Neighbor(userId)
		assert.Equal(t, expectedErr == nil, actualErr == nil)
		assert.Equal(t, expected, actual)
		expectedItems, _ := sequential.Recommend(userId)
		actualItems, _ := concurrent.Recommend(userId)
		assert.Equal(t, expectedItems, actualItems)
	}
}
