// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

// Package parallel provides bounded fan-out/gather helpers for
// per-item work: a plain map over a slice of items and a chunked
// variant that slices a sequence into contiguous batches.  The pool
// exists only for the duration of one call; there is no cancellation,
// and timeouts are the worker's responsibility.
package parallel

import (
	"runtime"
	"sync"
)

// Result pairs one input item with its worker outcome.
type Result[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// Map runs fn on every item concurrently on up to workers goroutines
// and returns one result per item, in input order.  workers <= 0
// means one per CPU.  A failing item does not affect its peers; its
// error is carried in the result.
func Map[T, R any](items []T, workers int, fn func(T) (R, error)) []Result[T, R] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]Result[T, R], len(items))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				value, err := fn(items[idx])
				results[idx] = Result[T, R]{Item: items[idx], Value: value, Err: err}
			}
		}()
	}
	for idx := range items {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
	return results
}

// Range is a contiguous half-open slice [Start, End) of the input
// sequence.
type Range struct {
	Start int
	End   int
}

// ChunkResult pairs one input range with its worker outcome.
type ChunkResult[R any] struct {
	Range Range
	Value R
	Err   error
}

// MapChunks slices items into contiguous ranges of chunkSize elements
// (the last range may be shorter) and applies fn to each slice on up
// to workers goroutines.  Results come back in range order.
func MapChunks[T, R any](items []T, chunkSize, workers int, fn func([]T) (R, error)) []ChunkResult[R] {
	if chunkSize <= 0 {
		chunkSize = len(items)
	}
	var ranges []Range
	for start := 0; start < len(items); start += chunkSize {
		end := start + chunkSize
		if end > len(items) {
			end = len(items)
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}

	results := Map(ranges, workers, func(r Range) (R, error) {
		return fn(items[r.Start:r.End])
	})

	out := make([]ChunkResult[R], len(results))
	for i, res := range results {
		out[i] = ChunkResult[R]{Range: res.Item, Value: res.Value, Err: res.Err}
	}
	return out
}
