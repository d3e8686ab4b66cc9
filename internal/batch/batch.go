// Package batch fans independent documents out to a worker pool. The core
// pipeline stays single-threaded per document; only whole-file jobs run
// concurrently.
package batch

import (
	"runtime"
	"sync"
)

type Job func(path string) error

// Run processes every path with the given job across workers and returns
// the per-file errors, order unspecified.
func Run(paths []string, workers int, fn Job) []error {
	if len(paths) == 0 || fn == nil {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers < 1 {
			workers = 1
		}
	}

	jobs := make(chan string)
	errs := make(chan error, len(paths))
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if err := fn(path); err != nil {
					errs <- err
				}
			}
		}()
	}

	for _, path := range paths {
		jobs <- path
	}
	close(jobs)
	wg.Wait()
	close(errs)

	out := make([]error, 0, len(errs))
	for err := range errs {
		out = append(out, err)
	}
	return out
}
