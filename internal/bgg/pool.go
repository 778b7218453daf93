package bgg

import (
	"context"
	"runtime"
	"sync"
)

// ImageResult is the outcome of fetching one image URL.
type ImageResult struct {
	Index int
	URL   string
	Data  []byte
	Err   error
}

// ImagePool fetches images with a bounded number of workers.
type ImagePool struct {
	Workers int // Number of parallel workers (default: NumCPU)
}

type imageJob struct {
	index int
	url   string
}

// FetchAll fetches every URL and returns the results in input order,
// whatever order the workers finish in. A failed fetch is reported in its
// result and does not stop the others.
func (p ImagePool) FetchAll(ctx context.Context, urls []string, fetch func(ctx context.Context, url string) ([]byte, error)) []ImageResult {
	results := make([]ImageResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(urls))

	jobs := make(chan imageJob, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				r := ImageResult{Index: job.index, URL: job.url}
				if err := ctx.Err(); err != nil {
					r.Err = err
				} else {
					r.Data, r.Err = fetch(ctx, job.url)
				}
				// Each index is written by exactly one worker.
				results[job.index] = r
			}
		}()
	}

	for i, u := range urls {
		jobs <- imageJob{index: i, url: u}
	}
	close(jobs)
	wg.Wait()
	return results
}
