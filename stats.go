package cmdq

import (
	"math"
	"sync/atomic"
	"time"
)

// queueStats holds the live counters. Every field is individually atomic;
// a multi-field read may observe a torn snapshot across fields but each
// field is internally consistent, which is the documented contract for
// statistics in this package.
type queueStats struct {
	submitted atomic.Uint64
	executed  atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	totalExecNanos atomic.Int64
	maxQueueSize   atomic.Int64

	frameCount      atomic.Uint64
	totalFrameNanos atomic.Int64
	minFrameNanos   atomic.Int64
	maxFrameNanos   atomic.Int64
}

// QueueStats is a read-only snapshot of queue counters and timing
// aggregates.
type QueueStats struct {
	Submitted uint64
	Executed  uint64
	Failed    uint64
	Dropped   uint64

	TotalExecTime   time.Duration
	AverageExecTime time.Duration

	CurrentQueueSize int
	MaxQueueSize     int

	FrameCount       uint64
	TotalFrameTime   time.Duration
	AverageFrameTime time.Duration
	MinFrameTime     time.Duration
	MaxFrameTime     time.Duration
}

func newQueueStats() *queueStats {
	s := &queueStats{}
	s.minFrameNanos.Store(math.MaxInt64)
	return s
}

func (s *queueStats) recordExec(d time.Duration) {
	s.executed.Add(1)
	s.totalExecNanos.Add(d.Nanoseconds())
}

func (s *queueStats) recordQueueSize(size int) {
	for {
		max := s.maxQueueSize.Load()
		if int64(size) <= max || s.maxQueueSize.CompareAndSwap(max, int64(size)) {
			return
		}
	}
}

func (s *queueStats) recordFrame(d time.Duration) {
	n := d.Nanoseconds()
	s.frameCount.Add(1)
	s.totalFrameNanos.Add(n)
	for {
		min := s.minFrameNanos.Load()
		if n >= min || s.minFrameNanos.CompareAndSwap(min, n) {
			break
		}
	}
	for {
		max := s.maxFrameNanos.Load()
		if n <= max || s.maxFrameNanos.CompareAndSwap(max, n) {
			break
		}
	}
}

// snapshot folds the live counters into a QueueStats value. currentSize
// is supplied by the owning queue.
func (s *queueStats) snapshot(currentSize int) QueueStats {
	executed := s.executed.Load()
	totalExec := s.totalExecNanos.Load()
	frames := s.frameCount.Load()
	totalFrame := s.totalFrameNanos.Load()

	out := QueueStats{
		Submitted:        s.submitted.Load(),
		Executed:         executed,
		Failed:           s.failed.Load(),
		Dropped:          s.dropped.Load(),
		TotalExecTime:    time.Duration(totalExec),
		CurrentQueueSize: currentSize,
		MaxQueueSize:     int(s.maxQueueSize.Load()),
		FrameCount:       frames,
		TotalFrameTime:   time.Duration(totalFrame),
		MaxFrameTime:     time.Duration(s.maxFrameNanos.Load()),
	}
	if executed > 0 {
		out.AverageExecTime = time.Duration(totalExec / int64(executed))
	}
	if frames > 0 {
		out.AverageFrameTime = time.Duration(totalFrame / int64(frames))
		out.MinFrameTime = time.Duration(s.minFrameNanos.Load())
	}
	return out
}

// reset zeroes all counters. Only an explicit reset ever decreases them.
func (s *queueStats) reset() {
	s.submitted.Store(0)
	s.executed.Store(0)
	s.failed.Store(0)
	s.dropped.Store(0)
	s.totalExecNanos.Store(0)
	s.maxQueueSize.Store(0)
	s.frameCount.Store(0)
	s.totalFrameNanos.Store(0)
	s.minFrameNanos.Store(math.MaxInt64)
	s.maxFrameNanos.Store(0)
}
