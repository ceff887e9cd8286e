package adapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

func countingEnumerator(calls *int, descs ...Desc) Enumerator {
	return EnumeratorFunc(func() ([]Adapter, error) {
		*calls++
		out := make([]Adapter, 0, len(descs))
		for _, d := range descs {
			out = append(out, New(d, nil))
		}
		return out, nil
	})
}

func TestAdaptersExcludeSoftware(t *testing.T) {
	var calls int
	s := NewSelector(countingEnumerator(&calls,
		Desc{Description: "Basic Render Driver", Flags: FlagSoftware, FeatureLevel: gpu.FeatureLevel12_1},
		Desc{Description: "Discrete", DeviceType: DeviceTypeDiscrete, FeatureLevel: gpu.FeatureLevel12_1},
		Desc{Description: "llvmpipe", DeviceType: DeviceTypeCPU, FeatureLevel: gpu.FeatureLevel12_0},
		Desc{Description: "Integrated", DeviceType: DeviceTypeIntegrated, FeatureLevel: gpu.FeatureLevel12_0},
	))

	adapters, err := s.Adapters()
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	for _, a := range adapters {
		assert.Zero(t, a.Desc().Flags&FlagSoftware, a.Desc().Description)
		assert.False(t, a.IsSoftware(), a.Desc().Description)
	}
	assert.Equal(t, "Discrete", adapters[0].Desc().Description)
	assert.Equal(t, "Integrated", adapters[1].Desc().Description)
}

func TestAdaptersAreCached(t *testing.T) {
	var calls int
	s := NewSelector(countingEnumerator(&calls,
		Desc{Description: "GPU", DeviceType: DeviceTypeDiscrete, FeatureLevel: gpu.FeatureLevel12_1},
	))

	first, err := s.Adapters()
	require.NoError(t, err)
	second, err := s.Adapters()
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, s.Enumerations())
	assert.Equal(t, first[0].Desc(), second[0].Desc())

	// callers get a copy; mutating it does not corrupt the cache
	first[0] = Adapter{}
	third, _ := s.Adapters()
	assert.Equal(t, "GPU", third[0].Desc().Description)
}

func TestAdaptersEnumerationError(t *testing.T) {
	var calls int
	s := NewSelector(countingEnumerator(&calls,
		Desc{Description: "WARP", Flags: FlagSoftware, FeatureLevel: gpu.FeatureLevel12_1},
		Desc{Description: "Old", DeviceType: DeviceTypeDiscrete, FeatureLevel: 0x9300},
	))

	_, err := s.Adapters()
	var enumErr *EnumerationError
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, 2, enumErr.Considered)
	assert.Equal(t, gpu.FeatureLevel11_0, enumErr.MinimumLevel)

	// the error is cached too
	_, err = s.Adapters()
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAdaptersBackendFailure(t *testing.T) {
	boom := errors.New("driver missing")
	s := NewSelector(EnumeratorFunc(func() ([]Adapter, error) { return nil, boom }))
	_, err := s.Adapters()
	assert.ErrorIs(t, err, boom)
}

func TestSelectHonorsFeatureLevel(t *testing.T) {
	var calls int
	s := NewSelector(countingEnumerator(&calls,
		Desc{Description: "FL11", DeviceType: DeviceTypeDiscrete, FeatureLevel: gpu.FeatureLevel11_1},
		Desc{Description: "FL12", DeviceType: DeviceTypeDiscrete, FeatureLevel: gpu.FeatureLevel12_1},
	))

	a, err := s.Select(gpu.FeatureLevel12_1)
	require.NoError(t, err)
	assert.Equal(t, "FL12", a.Desc().Description)

	_, err = s.Select(0xd000)
	var enumErr *EnumerationError
	assert.ErrorAs(t, err, &enumErr)
}

func TestMinimumFeatureLevelOption(t *testing.T) {
	var calls int
	s := NewSelector(countingEnumerator(&calls,
		Desc{Description: "FL11", DeviceType: DeviceTypeDiscrete, FeatureLevel: gpu.FeatureLevel11_0},
	), WithMinimumFeatureLevel(gpu.FeatureLevel12_0))

	_, err := s.Adapters()
	assert.Error(t, err)
}

func TestCreateDeviceRejectsHigherLevel(t *testing.T) {
	a := New(Desc{Description: "FL11", FeatureLevel: gpu.FeatureLevel11_0}, func(gpu.FeatureLevel) (gpu.Device, error) {
		t.Fatal("open must not be called")
		return nil, nil
	})
	_, err := a.CreateDevice(gpu.FeatureLevel12_1)
	assert.ErrorIs(t, err, ErrFeatureLevel)
}
