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
	"context"

	"github.com/gorse-io/neighbor/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// LoadDatabase loads all ratings from a database.
func LoadDatabase(ctx context.Context, source storage.RatingSource) (*Dataset, error) {
	var (
		d   Dataset
		err error
	)
	if d.NumUsers, err = source.CountUsers(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	if d.NumItems, err = source.CountItems(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	err = source.ScanRatings(ctx, func(r storage.Rating) error {
		rating := Rating{UserId: r.UserId, ItemId: r.ItemId, Rating: r.Rating}
		if err := rating.Validate(); err != nil {
			return errors.Trace(err)
		}
		d.Ratings = append(d.Ratings, rating)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &d, nil
}

// SaveDatabase writes ratings into a database in batches. progress is called with the
// number of ratings written by each batch.
func SaveDatabase(ctx context.Context, target storage.RatingSource, d *Dataset, batchSize int, progress func(int)) error {
	for _, chunk := range lo.Chunk(d.Ratings, max(batchSize, 1)) {
		ratings := lo.Map(chunk, func(r Rating, _ int) storage.Rating {
			return storage.Rating{UserId: r.UserId, ItemId: r.ItemId, Rating: r.Rating}
		})
		if err := target.BatchInsertRatings(ctx, ratings); err != nil {
			return errors.Trace(err)
		}
		if progress != nil {
			progress(len(chunk))
		}
	}
	return nil
}
