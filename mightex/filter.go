package mightex

import "fmt"

// Filter transforms the working buffer of a frame in place.
//
// working has PixelCount elements.  darkMean is the dark mean of the raw
// data.  userdata is whatever the caller passed to ApplyFilter, often nil.
type Filter interface {
	Transform(working []uint16, darkMean uint16, userdata interface{})
}

// FilterFunc adapts an ordinary function to the Filter interface
type FilterFunc func(working []uint16, darkMean uint16, userdata interface{})

// Transform calls f
func (f FilterFunc) Transform(working []uint16, darkMean uint16, userdata interface{}) {
	f(working, darkMean, userdata)
}

// DarkSubtract removes the dark mean from every sample, clamping at zero.
// It is the default filter.  It is not idempotent.
type DarkSubtract struct{}

// Transform satisfies Filter
func (DarkSubtract) Transform(working []uint16, darkMean uint16, _ interface{}) {
	for i, v := range working {
		if v > darkMean {
			working[i] = v - darkMean
		} else {
			working[i] = 0
		}
	}
}

// Threshold zeroes every sample below Level
type Threshold struct {
	Level uint16
}

// Transform satisfies Filter
func (t Threshold) Transform(working []uint16, _ uint16, _ interface{}) {
	for i, v := range working {
		if v < t.Level {
			working[i] = 0
		}
	}
}

// String satisfies fmt.Stringer
func (t Threshold) String() string {
	return fmt.Sprintf("threshold:%d", t.Level)
}

// Chain applies each filter in order
type Chain []Filter

// Transform satisfies Filter
func (c Chain) Transform(working []uint16, darkMean uint16, userdata interface{}) {
	for _, f := range c {
		f.Transform(working, darkMean, userdata)
	}
}

type stageKind int

const (
	stageDefault stageKind = iota
	stageNone
	stageCustom
)

// FilterStage holds the active filter of a session
type FilterStage struct {
	kind   stageKind
	custom Filter
}

// Set replaces the active filter.  A nil filter disables filtering.
func (s *FilterStage) Set(f Filter) {
	if f == nil {
		s.kind = stageNone
		s.custom = nil
		return
	}
	s.kind = stageCustom
	s.custom = f
}

// Reset restores the default dark subtraction filter
func (s *FilterStage) Reset() {
	s.kind = stageDefault
	s.custom = nil
}

// Active returns the filter that Apply will run, nil if disabled
func (s *FilterStage) Active() Filter {
	switch s.kind {
	case stageNone:
		return nil
	case stageCustom:
		return s.custom
	default:
		return DarkSubtract{}
	}
}

// Name describes the active filter
func (s *FilterStage) Name() string {
	switch s.kind {
	case stageNone:
		return "none"
	case stageCustom:
		if str, ok := s.custom.(fmt.Stringer); ok {
			return str.String()
		}
		return "custom"
	default:
		return "default"
	}
}

// Apply runs the active filter on the working buffer of f.  It may be called
// once per capture; the raw buffer is never handed to the filter.
func (s *FilterStage) Apply(f *Frame, userdata interface{}) error {
	if !f.captured {
		return ErrNoFrame
	}
	if f.filtered {
		return ErrFilterApplied
	}
	if flt := s.Active(); flt != nil {
		flt.Transform(f.working[:], f.darkMean, userdata)
	}
	f.filtered = true
	return nil
}
