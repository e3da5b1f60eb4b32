// Package fanout runs a function over a slice with a bounded number of workers
package fanout

import (
	"context"
	"sync"
)

// DefaultConcurrency is used when a caller asks for zero or fewer workers
const DefaultConcurrency = 8

// Result holds the per-item outcome of a fanout, indexed like the input
type Result[R any] struct {
	Values       []R
	Errors       []error
	Completed    []bool
	TotalItems   int
	SuccessCount int
	FailureCount int
	// Interrupted is set when ctx ended before every item was picked up
	Interrupted bool
}

type indexedItem[T any] struct {
	index int
	item  T
}

type indexedResult[R any] struct {
	index int
	value R
	err   error
}

// Run calls fn for every item with at most concurrency calls in flight. Once ctx is done no new items
// are started, but calls already running are not interrupted: fn receives a context that keeps ctx's
// values without its cancellation.
func Run[T, R any](ctx context.Context, concurrency int, items []T, fn func(ctx context.Context, index int, item T) (R, error)) *Result[R] {
	result := &Result[R]{
		Values:     make([]R, len(items)),
		Errors:     make([]error, len(items)),
		Completed:  make([]bool, len(items)),
		TotalItems: len(items),
	}
	if len(items) == 0 {
		return result
	}

	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	itemChan := make(chan indexedItem[T], len(items))
	resultChan := make(chan indexedResult[R], len(items))
	itemCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemChan {
				if ctx.Err() != nil {
					return
				}
				value, err := fn(itemCtx, item.index, item.item)
				resultChan <- indexedResult[R]{index: item.index, value: value, err: err}
			}
		}()
	}

	go func() {
		defer close(itemChan)
		for i, item := range items {
			select {
			case <-ctx.Done():
				return
			case itemChan <- indexedItem[T]{index: i, item: item}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		result.Values[res.index] = res.value
		result.Errors[res.index] = res.err
		result.Completed[res.index] = true
		if res.err != nil {
			result.FailureCount++
		} else {
			result.SuccessCount++
		}
	}

	result.Interrupted = result.SuccessCount+result.FailureCount < len(items)
	return result
}
