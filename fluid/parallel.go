package fluid

import (
	"runtime"
	"sync"
)

// serialThreshold is the smallest range worth splitting across goroutines.
const serialThreshold = 32

// parallelRange executes fn for each i in [start,end). The range is split among
// available CPUs. fn must only write state owned by its own i.
func parallelRange(start, end int, fn func(i int)) {
	total := end - start
	if total <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if total < serialThreshold || workers < 2 {
		for i := start; i < end; i++ {
			fn(i)
		}
		return
	}
	if workers > total {
		workers = total
	}
	var wg sync.WaitGroup
	chunk := (total + workers - 1) / workers
	for w := 0; w < workers; w++ {
		s := start + w*chunk
		e := s + chunk
		if e > end {
			e = end
		}
		if s >= end {
			break
		}
		wg.Add(1)
		go func(ss, ee int) {
			defer wg.Done()
			for i := ss; i < ee; i++ {
				fn(i)
			}
		}(s, e)
	}
	wg.Wait()
}
