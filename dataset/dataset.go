// Copyright 2025 gorse Project Authors
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

package dataset

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/neighbor/base/log"
	"github.com/gorse-io/neighbor/matrix"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Rating is an explicit rating of a user for an item.
type Rating struct {
	UserId uint32
	ItemId uint32
	Rating float32
}

// Validate rejects ratings which are not finite numbers.
func (r Rating) Validate() error {
	if math32.IsNaN(r.Rating) || math32.IsInf(r.Rating, 0) {
		return errors.NotValidf("rating %v of user %d for item %d", r.Rating, r.UserId, r.ItemId)
	}
	return nil
}

// Dataset is the output of ingestion: distinct counts of users and items plus ratings
// in source order.
type Dataset struct {
	NumUsers int
	NumItems int
	Ratings  []Rating
}

// Build creates a frozen rating matrix. The matrix has one spare row and one spare
// column over the distinct counts. Users and items get dense indices in the order
// they first appear in the ratings.
func (d *Dataset) Build() (*matrix.Matrix, error) {
	start := time.Now()
	m, err := matrix.NewMatrix(d.NumUsers+1, d.NumItems+1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, rating := range d.Ratings {
		if err = rating.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		if _, err = m.SetUser(rating.UserId); err != nil {
			return nil, errors.Trace(err)
		}
		if _, err = m.SetItem(rating.ItemId); err != nil {
			return nil, errors.Trace(err)
		}
		if err = m.SetRating(rating.UserId, rating.ItemId, rating.Rating); err != nil {
			return nil, errors.Trace(err)
		}
	}
	m.Freeze()
	BuildSeconds.Set(time.Since(start).Seconds())
	NumUsers.Set(float64(m.CountUsers()))
	NumItems.Set(float64(m.CountItems()))
	NumRatings.Set(float64(m.CountRatings()))
	log.Logger().Info("build rating matrix",
		zap.Int("n_users", m.CountUsers()),
		zap.Int("n_items", m.CountItems()),
		zap.Int("n_ratings", m.CountRatings()),
		zap.Duration("used_time", time.Since(start)))
	return m, nil
}
