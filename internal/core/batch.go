package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jo-hoe/lenna/internal/backend/imageio"
)

var batchInputExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true, ".svg": true,
}

// BatchResult is the outcome of one file of a batch
type BatchResult struct {
	Request ProcessRequest
	Result  *ProcessResult
	Err     error
}

// BatchRequests builds one request per image in the flat directory inputDir.
// Outputs go to outDir with the extension of format. Inputs sharing a base
// name keep their source extension, so a.png and a.jpg become a.png.png and
// a.jpg.png.
func BatchRequests(inputDir, outDir, format string, plugins []string, params []map[string]any) ([]ProcessRequest, error) {
	format, err := imageio.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", inputDir, err)
	}

	var inputs []string
	bases := make(map[string]int)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !batchInputExtensions[ext] {
			continue
		}
		inputs = append(inputs, entry.Name())
		bases[strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))]++
	}

	requests := make([]ProcessRequest, 0, len(inputs))
	outputs := make(map[string]string, len(inputs))
	for _, name := range inputs {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if bases[base] > 1 {
			base = name
		}
		output := filepath.Join(outDir, base+"."+format)
		if other, taken := outputs[output]; taken {
			return nil, fmt.Errorf("inputs %s and %s would both be written to %s", other, name, output)
		}
		outputs[output] = name

		requests = append(requests, ProcessRequest{
			InputPath:  filepath.Join(inputDir, name),
			OutputPath: output,
			Plugins:    plugins,
			Params:     params,
		})
	}
	return requests, nil
}

// ProcessBatch runs ProcessFile for every request using up to workers
// goroutines (GOMAXPROCS when workers <= 0). done is called after each
// file and may be nil. Requests not started before ctx is cancelled report
// the context error. Results keep the order of requests.
func (service *CoreService) ProcessBatch(ctx context.Context, requests []ProcessRequest, workers int, done func(BatchResult)) []BatchResult {
	results := make([]BatchResult, len(requests))
	for i, req := range requests {
		results[i] = BatchResult{Request: req}
	}

	var mu sync.Mutex
	started := make([]bool, len(requests))
	parallelForStop(len(requests), workers, func(i int) bool {
		if ctx.Err() != nil {
			return true
		}
		mu.Lock()
		started[i] = true
		mu.Unlock()

		result, err := service.ProcessFile(ctx, requests[i])
		results[i].Result, results[i].Err = result, err
		if done != nil {
			mu.Lock()
			done(results[i])
			mu.Unlock()
		}
		return false
	})

	for i := range results {
		if !started[i] {
			results[i].Err = ctx.Err()
		}
	}
	return results
}

// parallelForStop runs fn(i) over i in [0, n) using up to workers goroutines.
// If any fn invocation returns true, all workers stop early and the function returns true.
// Work is distributed by striding.
func parallelForStop(n, workers int, fn func(i int) bool) bool {
	if n <= 0 {
		return false
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, n)

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		w := w
		go func() {
			defer wg.Done()
			for i := w; i < n && !stop.Load(); i += workers {
				if fn(i) {
					stop.Store(true)
					return
				}
			}
		}()
	}

	wg.Wait()
	return stop.Load()
}
