// Copyright 2022 gorse Project Authors
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

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gorse-io/neighbor/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintStats(t *testing.T) {
	d := &dataset.Dataset{
		NumUsers: 2,
		NumItems: 3,
		Ratings: []dataset.Rating{
			{UserId: 10, ItemId: 1, Rating: 5},
			{UserId: 10, ItemId: 2, Rating: 3},
			{UserId: 20, ItemId: 3, Rating: 4},
		},
	}
	m, err := d.Build()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, printStats(&buf, m))
	lines := strings.Split(buf.String(), "\n")
	find := func(name string) string {
		for _, line := range lines {
			if strings.Contains(line, name) {
				return line
			}
		}
		return ""
	}
	assert.Contains(t, find("ratings"), "3")
	assert.Contains(t, find("capacity_users"), "3")
	assert.Contains(t, find("capacity_items"), "4")
}
