// Package profiler - Stage timing and memory accounting for a detection run.
package profiler

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeTracker tracks timing statistics for one named stage.
type TimeTracker struct {
	name      string
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// RuntimeProfiler records how long each pipeline stage took and how much
// memory the run allocated.
//
// The profiler is safe for concurrent use.
type RuntimeProfiler struct {
	mu        sync.Mutex
	startTime time.Time
	startMem  runtime.MemStats

	// Stage names in first-seen order, so reports follow the pipeline.
	order          []string
	operationTimes map[string]*TimeTracker
}

// StageTiming is a snapshot of one stage's statistics.
type StageTiming struct {
	Name  string
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
	Count int64
}

// NewRuntimeProfiler creates a profiler whose clock and memory baseline start
// now.
//
// Returns:
//   - *RuntimeProfiler: The profiler.
func NewRuntimeProfiler() *RuntimeProfiler {
	rp := &RuntimeProfiler{
		startTime:      time.Now(),
		operationTimes: make(map[string]*TimeTracker),
	}
	runtime.ReadMemStats(&rp.startMem)
	return rp
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes.
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

// recordOperationTime records the completion time of an operation.
func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		rp.operationTimes[name] = tracker
		rp.order = append(rp.order, name)
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Timings returns the recorded stages in the order they first ran.
func (rp *RuntimeProfiler) Timings() []StageTiming {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	timings := make([]StageTiming, 0, len(rp.order))
	for _, name := range rp.order {
		tracker := rp.operationTimes[name]
		timings = append(timings, StageTiming{
			Name:  tracker.name,
			Total: tracker.totalTime,
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
			Count: tracker.count,
		})
	}
	return timings
}

// Report logs one line with every stage duration, the wall time since the
// profiler was created and the bytes allocated since then.
//
// Arguments:
//   - logger: The logger to report to.
func (rp *RuntimeProfiler) Report(logger *zap.SugaredLogger) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fields := []interface{}{
		"elapsed", time.Since(rp.startTime).Truncate(time.Microsecond).String(),
		"allocated", formatBytes(mem.TotalAlloc - rp.startMem.TotalAlloc),
		"heap", formatBytes(mem.HeapAlloc),
		"cgo_calls", runtime.NumCgoCall(),
	}
	for _, timing := range rp.Timings() {
		fields = append(fields, timing.Name, timing.Total.Truncate(time.Microsecond).String())
	}
	logger.Infow("run profile", fields...)
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
