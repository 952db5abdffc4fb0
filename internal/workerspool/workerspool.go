// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent jobs, like the compilation of separate graphs, with a bounded number of
// them running at the same time.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of jobs running in parallel.
type Pool struct {
	// maxParallelism is the limit of jobs running at the same time: 0 runs jobs inline, negative is unlimited.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
}

// New returns a new Pool with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{maxParallelism: runtime.NumCPU()}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether parallelism is enabled (maxParallelism != 0).
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0).
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism returns the limit of jobs running at the same time.
// 0 means jobs run inline, and -1 that there is no limit.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the limit of jobs running at the same time.
//
// It should only be changed while no jobs are running.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

// lockedIsFull returns whether no more jobs can start. It must be called with w.mu locked.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until the job can be started, and starts it in a separate goroutine.
//
// If parallelism is disabled, it runs the job inline and returns when it is finished.
func (w *Pool) WaitToStart(job func()) {
	if w.IsUnlimited() {
		go job()
		return
	} else if !w.IsEnabled() {
		job()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.lockedStart(job)
}

// StartIfAvailable starts the job in a separate goroutine if the limit of parallel jobs was not reached.
// It returns whether the job was started.
func (w *Pool) StartIfAvailable(job func()) bool {
	if w.IsUnlimited() {
		go job()
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.IsEnabled() || w.lockedIsFull() {
		return false
	}
	w.lockedStart(job)
	return true
}

// lockedStart runs job in a goroutine, keeping track of the number of running jobs.
// It must be called with w.mu locked.
func (w *Pool) lockedStart(job func()) {
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Signal()
			w.mu.Unlock()
		}()
		job()
	}()
}

// ForEach runs job(i) for every i in [0, n), and returns when all of them finished.
func (w *Pool) ForEach(n int, job func(i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		w.WaitToStart(func() {
			defer wg.Done()
			job(i)
		})
	}
	wg.Wait()
}
