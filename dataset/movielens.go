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
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/neighbor/base/log"
	"github.com/gorse-io/neighbor/common/datautil"
	"github.com/gorse-io/neighbor/common/util"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	RatingsFile = "ratings.csv"
	MoviesFile  = "movies.csv"
)

// LoadMovieLens downloads a MovieLens archive into dir (unless already extracted) and
// loads the extracted directory.
func LoadMovieLens(ctx context.Context, url, dir, name string) (*Dataset, error) {
	if dir == "" {
		dir = datautil.DefaultDir()
	}
	path, err := datautil.DownloadAndUnzip(ctx, url, dir, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return LoadCSV(path)
}

// LoadCSV loads ratings.csv (userId,movieId,rating,...) from a directory. The number
// of users is the number of distinct users in ratings.csv. The number of items is the
// number of distinct movies in movies.csv, or in ratings.csv if movies.csv is absent.
func LoadCSV(dir string) (*Dataset, error) {
	var d Dataset
	users := mapset.NewThreadUnsafeSet[uint32]()
	items := mapset.NewThreadUnsafeSet[uint32]()
	err := readCSV(filepath.Join(dir, RatingsFile), func(line int, record []string) error {
		if len(record) < 3 {
			return errors.NotValidf("%s:%d has %d columns", RatingsFile, line, len(record))
		}
		userId, err := util.ParseUInt[uint32](record[0])
		if err != nil {
			return errors.Annotatef(err, "%s:%d user id", RatingsFile, line)
		}
		itemId, err := util.ParseUInt[uint32](record[1])
		if err != nil {
			return errors.Annotatef(err, "%s:%d item id", RatingsFile, line)
		}
		value, err := util.ParseFloat[float32](record[2])
		if err != nil {
			return errors.Annotatef(err, "%s:%d rating", RatingsFile, line)
		}
		rating := Rating{UserId: userId, ItemId: itemId, Rating: value}
		if err = rating.Validate(); err != nil {
			return errors.Annotatef(err, "%s:%d", RatingsFile, line)
		}
		users.Add(userId)
		items.Add(itemId)
		d.Ratings = append(d.Ratings, rating)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	d.NumUsers = users.Cardinality()
	d.NumItems = items.Cardinality()

	moviesPath := filepath.Join(dir, MoviesFile)
	if _, err = os.Stat(moviesPath); err == nil {
		movies := mapset.NewThreadUnsafeSet[uint32]()
		if err = readCSV(moviesPath, func(line int, record []string) error {
			itemId, err := util.ParseUInt[uint32](record[0])
			if err != nil {
				return errors.Annotatef(err, "%s:%d movie id", MoviesFile, line)
			}
			movies.Add(itemId)
			return nil
		}); err != nil {
			return nil, errors.Trace(err)
		}
		d.NumItems = movies.Cardinality()
	} else if !os.IsNotExist(err) {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load csv dataset",
		zap.String("dir", dir),
		zap.Int("n_users", d.NumUsers),
		zap.Int("n_items", d.NumItems),
		zap.Int("n_ratings", len(d.Ratings)))
	return &d, nil
}

// readCSV calls f for each record after the header. Lines are numbered from 1 and
// include the header.
func readCSV(path string, f func(line int, record []string) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	// skip header
	if _, err = reader.Read(); err == io.EOF {
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}
		if err = f(line, record); err != nil {
			return err
		}
	}
}
