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
	"time"

	"github.com/gorse-io/neighbor/base/log"
	"github.com/gorse-io/neighbor/config"
	"github.com/gorse-io/neighbor/storage"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Load loads a dataset from the configured source.
func Load(ctx context.Context, cfg config.DatasetConfig) (*Dataset, error) {
	start := time.Now()
	var (
		d   *Dataset
		err error
	)
	switch cfg.Source {
	case config.SourceMovieLens:
		d, err = LoadMovieLens(ctx, cfg.URL, cfg.Dir, cfg.Name)
	case config.SourceCSV:
		d, err = LoadCSV(cfg.Dir)
	case config.SourceDatabase:
		log.Logger().Info("connect database", zap.String("database", log.RedactDBURL(cfg.DatabaseURL)))
		var source storage.RatingSource
		source, err = storage.Open(cfg.DatabaseURL, cfg.TablePrefix)
		if err != nil {
			return nil, errors.Trace(err)
		}
		defer source.Close()
		d, err = LoadDatabase(ctx, source)
	default:
		return nil, errors.NotSupportedf("dataset source %q", cfg.Source)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	LoadSeconds.WithLabelValues(cfg.Source).Set(time.Since(start).Seconds())
	return d, nil
}
