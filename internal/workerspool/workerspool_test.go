// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEach(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := New()
		pool.SetMaxParallelism(parallelism)
		var running, maxRunning atomic.Int32
		done := make([]bool, 20)
		pool.ForEach(len(done), func(i int) {
			current := running.Add(1)
			for {
				prev := maxRunning.Load()
				if current <= prev || maxRunning.CompareAndSwap(prev, current) {
					break
				}
			}
			runtime.Gosched()
			done[i] = true
			running.Add(-1)
		})
		for i, ok := range done {
			assert.Truef(t, ok, "job %d not run with parallelism %d", i, parallelism)
		}
		if parallelism > 0 {
			assert.LessOrEqual(t, int(maxRunning.Load()), parallelism)
		}
		if parallelism == 0 {
			assert.Equal(t, int32(1), maxRunning.Load())
		}
	}
}

func TestStartIfAvailable(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(1)
	release := make(chan struct{})
	finished := make(chan struct{})
	assert.True(t, pool.StartIfAvailable(func() {
		<-release
		close(finished)
	}))
	assert.False(t, pool.StartIfAvailable(func() {}))
	close(release)
	<-finished

	pool.SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())
	assert.False(t, pool.StartIfAvailable(func() {}))
}
