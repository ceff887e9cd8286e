package profiler

import (
	"maps"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

// Stats is one reporting window.
type Stats struct {
	FPS          float64
	Frames       map[string]int
	HeapMB       float64
	AllocRateMB  float64
	SysMB        float64
	GCCount      uint32
	LastPauseUs  uint64
	MaxPauseUs   uint64
	WindowLength time.Duration
}

// Profiler tracks frame rate, frames per render path and memory statistics.
// Logs a line through the engine logger at a configurable interval.
type Profiler struct {
	frameCount     int
	pathFrames     map[string]int
	lastTime       time.Time
	updateInterval time.Duration
	clock          func() time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Stats
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second and the clock to time.Now.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		pathFrames:     make(map[string]int),
		updateInterval: time.Second,
		clock:          time.Now,
	}
	for _, option := range options {
		option(p)
	}
	p.lastTime = p.clock()
	return p
}

// Tick should be called once per presented frame.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, frames per path, heap usage, allocation rate, GC count/pause times, total memory.
//
// Parameters:
//   - path: the render path that produced the frame, e.g. "raster" or "raytrace"
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(path string) bool {
	p.frameCount++
	p.pathFrames[path]++
	currentTime := p.clock()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	// Alloc is live heap, TotalAlloc only grows (churn), Sys is the process footprint
	s := Stats{
		FPS:          float64(p.frameCount) / elapsed.Seconds(),
		Frames:       maps.Clone(p.pathFrames),
		HeapMB:       float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMB:  float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		SysMB:        float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:      p.memStats.NumGC,
		WindowLength: elapsed,
	}

	if s.GCCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		s.LastPauseUs = p.memStats.PauseNs[(s.GCCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if s.GCCount-startIdx > 256 {
			startIdx = s.GCCount - 256
		}
		for i := startIdx; i < s.GCCount; i++ {
			s.MaxPauseUs = max(s.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	logger.Logger().Info("profiler",
		"fps", s.FPS,
		"raster_frames", s.Frames["raster"],
		"raytrace_frames", s.Frames["raytrace"],
		"heap_mb", s.HeapMB,
		"alloc_rate_mb_s", s.AllocRateMB,
		"gc", s.GCCount,
		"gc_last_us", s.LastPauseUs,
		"gc_max_us", s.MaxPauseUs,
		"sys_mb", s.SysMB,
	)

	p.last = s
	p.frameCount = 0
	clear(p.pathFrames)
	p.lastTime = currentTime
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Last returns the most recently logged window.
func (p *Profiler) Last() Stats {
	return p.last
}
