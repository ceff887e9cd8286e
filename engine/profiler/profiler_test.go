package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickReportsPerPathFrames(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProfiler(WithClock(func() time.Time { return now }))

	for range 30 {
		now = now.Add(10 * time.Millisecond)
		assert.False(t, p.Tick("raster"))
	}
	for range 69 {
		now = now.Add(10 * time.Millisecond)
		assert.False(t, p.Tick("raytrace"))
	}
	now = now.Add(10 * time.Millisecond)
	assert.True(t, p.Tick("raytrace"))

	s := p.Last()
	assert.InDelta(t, 100, s.FPS, 1e-9)
	assert.Equal(t, map[string]int{"raster": 30, "raytrace": 70}, s.Frames)
	assert.Equal(t, time.Second, s.WindowLength)

	// the next window starts empty
	now = now.Add(2 * time.Second)
	assert.True(t, p.Tick("raster"))
	assert.Equal(t, map[string]int{"raster": 1}, p.Last().Frames)
}

func TestWithInterval(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProfiler(WithInterval(50*time.Millisecond), WithClock(func() time.Time { return now }))
	now = now.Add(49 * time.Millisecond)
	assert.False(t, p.Tick("raster"))
	now = now.Add(time.Millisecond)
	assert.True(t, p.Tick("raster"))
}
