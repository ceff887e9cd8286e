package adapter

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

// selector is the implementation of the Selector interface.
type selector struct {
	enumerator   Enumerator
	minimumLevel gpu.FeatureLevel

	once         sync.Once
	adapters     []Adapter
	err          error
	enumerations int
}

// Selector owns the adapter list for the lifetime of the process. Construct one at
// startup and pass it to whatever needs adapter information.
type Selector interface {
	// Adapters returns the usable adapters in enumeration order. Software adapters and
	// adapters below the minimum feature level are excluded. The first call enumerates;
	// later calls return the cached result without touching the backend.
	//
	// Returns:
	//   - []Adapter: the usable adapters (a copy of the cached slice)
	//   - error: *EnumerationError if none qualify or enumeration failed
	Adapters() ([]Adapter, error)

	// Select returns the first usable adapter whose feature level is at least level.
	//
	// Parameters:
	//   - level: the feature level the device will be created at
	//
	// Returns:
	//   - Adapter: the chosen adapter
	//   - error: *EnumerationError if no adapter reaches level
	Select(level gpu.FeatureLevel) (Adapter, error)

	// Enumerations reports how many times the backend has been enumerated.
	//
	// Returns:
	//   - int: 0 before the first Adapters call, 1 afterwards
	Enumerations() int
}

var _ Selector = &selector{}

// NewSelector creates a Selector over the given enumerator.
// The default minimum feature level is 11_0.
//
// Parameters:
//   - enumerator: the backend adapter source
//   - options: functional options for selector configuration
//
// Returns:
//   - Selector: the newly created selector
func NewSelector(enumerator Enumerator, options ...SelectorBuilderOption) Selector {
	s := &selector{
		enumerator:   enumerator,
		minimumLevel: gpu.FeatureLevel11_0,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *selector) Adapters() ([]Adapter, error) {
	s.once.Do(s.enumerate)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Adapter, len(s.adapters))
	copy(out, s.adapters)
	return out, nil
}

func (s *selector) Select(level gpu.FeatureLevel) (Adapter, error) {
	adapters, err := s.Adapters()
	if err != nil {
		return Adapter{}, err
	}
	for _, a := range adapters {
		if a.desc.FeatureLevel >= level {
			logger.Logger().Info("adapter selected",
				"description", a.desc.Description,
				"type", a.desc.DeviceType.String(),
				"backend", a.desc.Backend,
				"featureLevel", a.desc.FeatureLevel.String())
			return a, nil
		}
	}
	return Adapter{}, &EnumerationError{MinimumLevel: level, Considered: len(adapters)}
}

func (s *selector) Enumerations() int {
	return s.enumerations
}

// enumerate queries the backend once and filters the result.
func (s *selector) enumerate() {
	s.enumerations++
	if s.enumerator == nil {
		s.err = &EnumerationError{MinimumLevel: s.minimumLevel, Err: fmt.Errorf("no enumerator configured")}
		return
	}

	all, err := s.enumerator.EnumerateAdapters()
	if err != nil {
		s.err = &EnumerationError{MinimumLevel: s.minimumLevel, Err: err}
		return
	}

	log := logger.Logger()
	for _, a := range all {
		if a.IsSoftware() {
			log.Debug("skipping software adapter", "description", a.desc.Description)
			continue
		}
		if a.desc.FeatureLevel < s.minimumLevel {
			log.Debug("skipping adapter below minimum feature level",
				"description", a.desc.Description,
				"featureLevel", a.desc.FeatureLevel.String())
			continue
		}
		s.adapters = append(s.adapters, a)
	}

	if len(s.adapters) == 0 {
		s.err = &EnumerationError{MinimumLevel: s.minimumLevel, Considered: len(all)}
	}
}
