// Copyright 2021 gorse Project Authors
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

package storage

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// SQLRating is the row of the ratings table.
type SQLRating struct {
	UserId uint32  `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ItemId uint32  `gorm:"column:item_id;primaryKey;autoIncrement:false;index"`
	Rating float32 `gorm:"column:rating;not null"`
}

// SQLDatabase stores ratings in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates the ratings table.
func (d *SQLDatabase) Init() error {
	db := d.gormDB
	if d.driver == MySQL {
		db = db.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := db.AutoMigrate(&SQLRating{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

func (d *SQLDatabase) CountUsers(ctx context.Context) (int, error) {
	return d.countDistinct(ctx, "user_id")
}

func (d *SQLDatabase) CountItems(ctx context.Context) (int, error) {
	return d.countDistinct(ctx, "item_id")
}

func (d *SQLDatabase) countDistinct(ctx context.Context, column string) (int, error) {
	var count int64
	if err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).Distinct(column).Count(&count).Error; err != nil {
		return 0, errors.Trace(err)
	}
	return int(count), nil
}

func (d *SQLDatabase) ScanRatings(ctx context.Context, f func(Rating) error) error {
	rows, err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).Select("user_id, item_id, rating").Rows()
	if err != nil {
		return errors.Trace(err)
	}
	defer rows.Close()
	for rows.Next() {
		var rating Rating
		if err = rows.Scan(&rating.UserId, &rating.ItemId, &rating.Rating); err != nil {
			return errors.Trace(err)
		}
		if err = f(rating); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(rows.Err())
}

func (d *SQLDatabase) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	rows := lo.Map(dedupRatings(ratings), func(r Rating, _ int) SQLRating {
		return SQLRating{UserId: r.UserId, ItemId: r.ItemId, Rating: r.Rating}
	})
	if len(rows) == 0 {
		return nil
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

// dedupRatings keeps the last rating of each user and item. A single upsert statement
// must not touch the same row twice.
func dedupRatings(ratings []Rating) []Rating {
	positions := make(map[lo.Tuple2[uint32, uint32]]int, len(ratings))
	result := make([]Rating, 0, len(ratings))
	for _, rating := range ratings {
		key := lo.T2(rating.UserId, rating.ItemId)
		if i, exist := positions[key]; exist {
			result[i] = rating
			continue
		}
		positions[key] = len(result)
		result = append(result, rating)
	}
	return result
}
