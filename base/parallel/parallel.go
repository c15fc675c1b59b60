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
	"sync"

	"github.com/gorse-io/neighbor/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"modernc.org/mathutil"
)

const chanSize = 1024

type batchJob struct {
	beginId int
	endId   int
}

// BatchParallel runs jobs [0, nJobs) in batches of batchSize on nWorkers goroutines.
// The worker is passed the half-open range of job IDs of each batch. All workers have
// returned when BatchParallel returns. A panic in a worker is returned as an error.
func BatchParallel(nJobs, nWorkers, batchSize int, worker func(workerId, beginJobId, endJobId int) error) error {
	if nJobs <= 0 {
		return nil
	}
	if nWorkers <= 1 {
		return runBatch(worker, 0, batchJob{beginId: 0, endId: nJobs})
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	c := make(chan batchJob, chanSize)
	// producer
	go func() {
		for i := 0; i < nJobs; i += batchSize {
			c <- batchJob{beginId: i, endId: mathutil.Min(i+batchSize, nJobs)}
		}
		close(c)
	}()
	// consumer
	var wg sync.WaitGroup
	wg.Add(nWorkers)
	errs := make([]error, nJobs)
	for j := 0; j < nWorkers; j++ {
		go func(workerId int) {
			defer wg.Done()
			for job := range c {
				if err := runBatch(worker, workerId, job); err != nil {
					errs[job.beginId] = err
					// drain remaining jobs so the producer never blocks
					for range c {
					}
					return
				}
			}
		}(j)
	}
	wg.Wait()
	// check errors
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func runBatch(worker func(workerId, beginJobId, endJobId int) error, workerId int, job batchJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("panic recovered", zap.Any("panic", r),
				zap.Int("begin_job_id", job.beginId), zap.Int("end_job_id", job.endId))
			err = errors.Errorf("panic in jobs [%d, %d): %v", job.beginId, job.endId, r)
		}
	}()
	return worker(workerId, job.beginId, job.endId)
}

// NumBatches returns the number of batches BatchParallel creates.
func NumBatches(nJobs, batchSize int) int {
	if nJobs <= 0 {
		return 0
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return (nJobs + batchSize - 1) / batchSize
}
