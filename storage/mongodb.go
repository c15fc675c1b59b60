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

	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB stores ratings in a collection.
type MongoDB struct {
	TablePrefix
	client *mongo.Client
	dbName string
}

// Init collections and indices in MongoDB.
func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	if !lo.Contains(collections, db.RatingsTable()) {
		if err = d.CreateCollection(ctx, db.RatingsTable()); err != nil {
			return errors.Trace(err)
		}
	}
	// create index
	_, err = d.Collection(db.RatingsTable()).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.M{"item_id": 1},
		},
	})
	return errors.Trace(err)
}

// Close connection to MongoDB.
func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) CountUsers(ctx context.Context) (int, error) {
	return db.countDistinct(ctx, "user_id")
}

func (db *MongoDB) CountItems(ctx context.Context) (int, error) {
	return db.countDistinct(ctx, "item_id")
}

func (db *MongoDB) countDistinct(ctx context.Context, field string) (int, error) {
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	distinct, err := c.Distinct(ctx, field, bson.M{})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return len(distinct), nil
}

func (db *MongoDB) ScanRatings(ctx context.Context, f func(Rating) error) error {
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	r, err := c.Find(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	defer r.Close(ctx)
	for r.Next(ctx) {
		var rating Rating
		if err = r.Decode(&rating); err != nil {
			return errors.Trace(err)
		}
		if err = f(rating); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(r.Err())
}

func (db *MongoDB) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	var models []mongo.WriteModel
	for _, rating := range ratings {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"user_id": rating.UserId, "item_id": rating.ItemId}).
			SetUpdate(bson.M{"$set": rating}))
	}
	_, err := c.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return errors.Trace(err)
}
