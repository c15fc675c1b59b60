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
	"sort"

	"github.com/chewxy/math32"
	"github.com/gorse-io/neighbor/base"
	"github.com/gorse-io/neighbor/base/parallel"
	"github.com/gorse-io/neighbor/matrix"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// ErrNoRecommendation is returned when the user is known but there is nothing to
// recommend: either no other user exists, or the nearest neighbor has no positive rating.
var ErrNoRecommendation = errors.New("no recommendation")

const defaultBatchSize = 256

// Neighbor is the most similar user to a target user.
type Neighbor struct {
	UserId     uint32
	Similarity float32
}

// Recommender recommends items rated by the single nearest neighbor of a user.
//
// Similarity is the raw dot product between rating vectors. It is not normalized, so
// users with many or high ratings tend to be chosen as neighbors.
type Recommender struct {
	matrix    *matrix.Matrix
	jobs      int
	batchSize int
}

// NewRecommender creates a recommender over a frozen matrix. The neighbor search is
// split over jobs goroutines.
func NewRecommender(m *matrix.Matrix, jobs int) (*Recommender, error) {
	if m == nil || !m.Frozen() {
		return nil, errors.NotValidf("matrix must be frozen before serving")
	}
	return &Recommender{
		matrix:    m,
		jobs:      max(jobs, 1),
		batchSize: defaultBatchSize,
	}, nil
}

// Matrix returns the rating matrix.
func (r *Recommender) Matrix() *matrix.Matrix {
	return r.matrix
}

type candidate struct {
	index int32
	score float32
}

// nearest scans every user except the target. The first user in index order with the
// greatest similarity wins. Batches keep their own first maximum and are reduced in
// order, so the result does not depend on the number of jobs.
func (r *Recommender) nearest(target int32) (candidate, bool, error) {
	numUsers := r.matrix.CountUsers()
	targetRow := r.matrix.Row(target)
	best := make([]candidate, max(parallel.NumBatches(numUsers, r.batchSize), 1))
	for i := range best {
		best[i] = candidate{index: base.NotId, score: math32.Inf(-1)}
	}
	err := parallel.BatchParallel(numUsers, r.jobs, r.batchSize, func(_, beginJobId, endJobId int) error {
		c := candidate{index: base.NotId, score: math32.Inf(-1)}
		for i := beginJobId; i < endJobId; i++ {
			if int32(i) == target {
				continue
			}
			score := matrix.Similarity(targetRow, r.matrix.Row(int32(i)))
			if score > c.score {
				c = candidate{index: int32(i), score: score}
			}
		}
		best[beginJobId/r.batchSize] = c
		return nil
	})
	if err != nil {
		return candidate{}, false, errors.Trace(err)
	}
	result := candidate{index: base.NotId, score: math32.Inf(-1)}
	for _, c := range best {
		if c.index != base.NotId && c.score > result.score {
			result = c
		}
	}
	return result, result.index != base.NotId, nil
}

// Neighbor finds the nearest neighbor of a user. It returns a NotFound error for unknown
// users and ErrNoRecommendation if the user is the only one.
func (r *Recommender) Neighbor(userId uint32) (Neighbor, error) {
	userIndex, ok := r.matrix.UserIndex(userId)
	if !ok {
		return Neighbor{}, errors.NotFoundf("user %d", userId)
	}
	c, ok, err := r.nearest(userIndex)
	if err != nil {
		return Neighbor{}, errors.Trace(err)
	} else if !ok {
		return Neighbor{}, errors.Trace(ErrNoRecommendation)
	}
	return Neighbor{UserId: r.matrix.UserName(c.index), Similarity: c.score}, nil
}

// Recommend returns items rated positively by the nearest neighbor of a user, ordered
// by rating from high to low. Items with the same rating keep their index order.
func (r *Recommender) Recommend(userId uint32) ([]uint32, error) {
	userIndex, ok := r.matrix.UserIndex(userId)
	if !ok {
		return nil, errors.NotFoundf("user %d", userId)
	}
	c, ok, err := r.nearest(userIndex)
	if err != nil {
		return nil, errors.Trace(err)
	} else if !ok {
		return nil, errors.Trace(ErrNoRecommendation)
	}
	rated := make([]lo.Tuple2[int32, float32], 0)
	r.matrix.Row(c.index).ForEach(func(_ int, index int32, value float32) {
		if value > 0 {
			rated = append(rated, lo.Tuple2[int32, float32]{A: index, B: value})
		}
	})
	if len(rated) == 0 {
		return nil, errors.Trace(ErrNoRecommendation)
	}
	sort.SliceStable(rated, func(i, j int) bool {
		return rated[i].B > rated[j].B
	})
	return lo.Map(rated, func(t lo.Tuple2[int32, float32], _ int) uint32 {
		return r.matrix.ItemName(t.A)
	}), nil
}

// RecommendN returns at most n recommended items. All items are returned if n <= 0.
func (r *Recommender) RecommendN(userId uint32, n int) ([]uint32, error) {
	items, err := r.Recommend(userId)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items, nil
}
