// Copyright 2020 gorse Project Authors
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

package parallel

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
)

func TestBatchParallel(t *testing.T) {
	a := make([]int, 10000)
	for i := range a {
		a[i] = i
	}
	b := make([]int, len(a))
	workerIds := make([]int, len(a))
	// multiple threads
	err := BatchParallel(len(a), 4, 10, func(workerId, beginJobId, endJobId int) error {
		for jobId := beginJobId; jobId < endJobId; jobId++ {
			b[jobId] = a[jobId]
			workerIds[jobId] = workerId
		}
		time.Sleep(time.Microsecond)
		return nil
	})
	assert.NoError(t, err)
	workersSet := mapset.NewSet(workerIds...)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, 4, workersSet.Cardinality())
	assert.Less(t, 1, workersSet.Cardinality())
	// single thread
	err = BatchParallel(len(a), 1, 10, func(workerId, beginJobId, endJobId int) error {
		for jobId := beginJobId; jobId < endJobId; jobId++ {
			b[jobId] = a[jobId]
			workerIds[jobId] = workerId
		}
		return nil
	})
	assert.NoError(t, err)
	workersSet = mapset.NewSet(workerIds...)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, workersSet.Cardinality())
	// no jobs
	assert.NoError(t, BatchParallel(0, 4, 10, func(int, int, int) error {
		return fmt.Errorf("unexpected call")
	}))
}

func TestBatchParallelError(t *testing.T) {
	err := BatchParallel(1000, 4, 10, func(workerId, beginJobId, endJobId int) error {
		if beginJobId == 500 {
			return fmt.Errorf("error from %d", beginJobId)
		}
		return nil
	})
	assert.Error(t, err)
	err = BatchParallel(1000, 1, 10, func(workerId, beginJobId, endJobId int) error {
		return fmt.Errorf("error from %d", beginJobId)
	})
	assert.Error(t, err)
}

func TestBatchParallelPanic(t *testing.T) {
	for _, numWorkers := range []int{1, 4} {
		var done atomic.Int32
		err := BatchParallel(1000, numWorkers, 10, func(workerId, beginJobId, endJobId int) error {
			if beginJobId <= 500 && 500 < endJobId {
				panic("out of range")
			}
			done.Add(1)
			return nil
		})
		if assert.Error(t, err, numWorkers) {
			assert.Contains(t, err.Error(), "out of range")
		}
		// all workers have returned
		assert.LessOrEqual(t, done.Load(), int32(99))
	}
}

func TestNumBatches(t *testing.T) {
	assert.Equal(t, 0, NumBatches(0, 10))
	assert.Equal(t, 1, NumBatches(10, 10))
	assert.Equal(t, 2, NumBatches(11, 10))
	assert.Equal(t, 5, NumBatches(5, 0))
}
