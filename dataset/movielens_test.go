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
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/neighbor/config"
	"github.com/gorse-io/neighbor/recommend"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRatings = `userId,movieId,rating,timestamp
1,1,3.14,964982703
1,2,2.71,964981247
1,3,1.41,964982224
2,2,3.14,964983815
2,3,1.41,964982931
3,2,2.71,964982400
3,3,3.14,964980868
`
	testMovies = `movieId,title,genres
1,Toy Story (1995),Adventure|Animation|Children|Comedy|Fantasy
2,"American President, The (1995)",Comedy|Drama|Romance
3,Heat (1995),Action|Crime|Thriller
4,Sabrina (1995),Comedy|Romance
`
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	require.NoError(t, os.MkdirAll(dir, os.ModePerm))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{RatingsFile: testRatings, MoviesFile: testMovies})
	d, err := LoadCSV(dir)
	assert.NoError(t, err)
	assert.Equal(t, 3, d.NumUsers)
	// items are counted from movies.csv
	assert.Equal(t, 4, d.NumItems)
	assert.Len(t, d.Ratings, 7)
	assert.Equal(t, Rating{UserId: 1, ItemId: 1, Rating: 3.14}, d.Ratings[0])

	// end to end
	m, err := d.Build()
	assert.NoError(t, err)
	r, err := recommend.NewRecommender(m, 1)
	assert.NoError(t, err)
	items, err := r.Recommend(1)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{3, 2}, items)
}

func TestLoadCSV_WithoutMovies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{RatingsFile: testRatings})
	d, err := LoadCSV(dir)
	assert.NoError(t, err)
	assert.Equal(t, 3, d.NumUsers)
	assert.Equal(t, 3, d.NumItems)
}

func TestLoadCSV_Invalid(t *testing.T) {
	for name, ratings := range map[string]string{
		"user":    "userId,movieId,rating\nabc,1,1\n",
		"item":    "userId,movieId,rating\n1,-1,1\n",
		"rating":  "userId,movieId,rating\n1,1,high\n",
		"nan":     "userId,movieId,rating\n1,1,NaN\n",
		"inf":     "userId,movieId,rating\n1,1,+Inf\n",
		"columns": "userId,movieId,rating\n1,1\n",
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{RatingsFile: ratings})
			_, err := LoadCSV(dir)
			assert.Error(t, err)
		})
	}
	// missing ratings.csv
	_, err := LoadCSV(t.TempDir())
	assert.Error(t, err)
}

func TestLoadCSV_Empty(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{RatingsFile: ""})
	d, err := LoadCSV(dir)
	assert.NoError(t, err)
	assert.Zero(t, d.NumUsers)
	assert.Empty(t, d.Ratings)
}

func TestLoadMovieLens(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	w := zip.NewWriter(buf)
	for name, content := range map[string]string{
		"ml-test/" + RatingsFile: testRatings,
		"ml-test/" + MoviesFile:  testMovies,
	} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	dir := t.TempDir()
	d, err := Load(context.Background(), config.DatasetConfig{
		Source: config.SourceMovieLens,
		URL:    server.URL + "/ml-test.zip",
		Dir:    dir,
		Name:   "ml-test",
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, d.NumUsers)
	assert.Equal(t, 4, d.NumItems)
	assert.Len(t, d.Ratings, 7)
	assert.FileExists(t, filepath.Join(dir, "ml-test", RatingsFile))

	// csv source reads the extracted directory
	d, err = Load(context.Background(), config.DatasetConfig{
		Source: config.SourceCSV,
		Dir:    filepath.Join(dir, "ml-test"),
	})
	assert.NoError(t, err)
	assert.Len(t, d.Ratings, 7)
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := Load(context.Background(), config.DatasetConfig{Source: "redis"})
	assert.True(t, errors.Is(err, errors.NotSupported))
}
