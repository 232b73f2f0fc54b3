package parser

import (
	"context"
	"runtime"
	"sync"
)

// ConcurrentCoercer spreads row coercion over a worker pool. Output order
// always matches input order.
type ConcurrentCoercer struct {
	coercer     *Coercer
	workerCount int
}

// NewConcurrentCoercer creates a pool-backed coercer. workers <= 0 uses GOMAXPROCS.
func NewConcurrentCoercer(cfg Config, workers int) *ConcurrentCoercer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ConcurrentCoercer{
		coercer:     NewCoercer(cfg),
		workerCount: workers,
	}
}

type rowJob struct {
	idx    int
	record []string
	rowNum int
}

// Parse coerces the rows after headerRow. It stops dispatching when ctx is
// cancelled and returns ctx.Err().
func (p *ConcurrentCoercer) Parse(ctx context.Context, rows [][]string, headerRow int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := headerRow + 1
	if start >= len(rows) {
		return &Result{}, nil
	}
	body := rows[start:]

	// small inputs are not worth the goroutines
	if len(body) < p.workerCount*4 {
		return p.coercer.Parse(rows, headerRow), nil
	}

	lines := make([]*StatementLine, len(body))
	jobs := make(chan rowJob, p.workerCount*10)

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				lines[job.idx] = p.coercer.Line(job.record, job.rowNum)
			}
		}()
	}

	var cancelled error
dispatch:
	for i, rec := range body {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case jobs <- rowJob{idx: i, record: rec, rowNum: start + i + 1}:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, cancelled
	}

	res := &Result{}
	for _, l := range lines {
		res.add(l)
	}
	return res, nil
}
