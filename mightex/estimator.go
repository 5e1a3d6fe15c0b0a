package mightex

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Estimator reduces the working buffer of a frame to a single value.
//
// working is a scratch copy of the working buffer; changes to it are
// discarded.
type Estimator interface {
	Estimate(working []uint16, darkMean uint16, userdata interface{}) float64
}

// EstimatorFunc adapts an ordinary function to the Estimator interface
type EstimatorFunc func(working []uint16, darkMean uint16, userdata interface{}) float64

// Estimate calls f
func (f EstimatorFunc) Estimate(working []uint16, darkMean uint16, userdata interface{}) float64 {
	return f(working, darkMean, userdata)
}

// WeightedMean is the centroid of the samples at or above Factor times the
// dark mean, using sample values as weights and pixel indices as positions.
// If nothing passes the threshold the estimate is 0.
//
// The default estimator is WeightedMean{Factor: 3}.
type WeightedMean struct {
	Factor uint16
}

// Estimate satisfies Estimator
func (w WeightedMean) Estimate(working []uint16, darkMean uint16, _ interface{}) float64 {
	threshold := uint32(w.Factor) * uint32(darkMean)
	var (
		idx     = make([]float64, 0, len(working))
		weights = make([]float64, 0, len(working))
		sum     float64
	)
	for i, v := range working {
		if uint32(v) < threshold {
			continue
		}
		idx = append(idx, float64(i))
		weights = append(weights, float64(v))
		sum += float64(v)
	}
	if sum == 0 {
		return 0
	}
	return stat.Mean(idx, weights)
}

// String satisfies fmt.Stringer
func (w WeightedMean) String() string {
	return fmt.Sprintf("weighted-mean:%d", w.Factor)
}

// Peak is the index of the brightest sample, the first one on ties
type Peak struct{}

// Estimate satisfies Estimator
func (Peak) Estimate(working []uint16, _ uint16, _ interface{}) float64 {
	if len(working) == 0 {
		return 0
	}
	return float64(floats.MaxIdx(toFloat(working)))
}

// String satisfies fmt.Stringer
func (Peak) String() string { return "peak" }

// Mean is the arithmetic mean of the working buffer
type Mean struct{}

// Estimate satisfies Estimator
func (Mean) Estimate(working []uint16, _ uint16, _ interface{}) float64 {
	if len(working) == 0 {
		return 0
	}
	return stat.Mean(toFloat(working), nil)
}

// String satisfies fmt.Stringer
func (Mean) String() string { return "mean" }

func toFloat(u []uint16) []float64 {
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = float64(v)
	}
	return out
}

// EstimatorStage holds the active estimator of a session
type EstimatorStage struct {
	kind   stageKind
	custom Estimator
}

// Set replaces the active estimator.  A nil estimator restores the default.
func (s *EstimatorStage) Set(e Estimator) {
	if e == nil {
		s.Reset()
		return
	}
	s.kind = stageCustom
	s.custom = e
}

// Reset restores the default thresholded weighted mean
func (s *EstimatorStage) Reset() {
	s.kind = stageDefault
	s.custom = nil
}

// Active returns the estimator that Apply will run
func (s *EstimatorStage) Active() Estimator {
	if s.kind == stageCustom {
		return s.custom
	}
	return WeightedMean{Factor: 3}
}

// Name describes the active estimator
func (s *EstimatorStage) Name() string {
	if s.kind != stageCustom {
		return "default"
	}
	if str, ok := s.custom.(fmt.Stringer); ok {
		return str.String()
	}
	return "custom"
}

// Apply runs the active estimator against a copy of the working buffer of f
func (s *EstimatorStage) Apply(f *Frame, userdata interface{}) float64 {
	scratch := f.working
	return s.Active().Estimate(scratch[:], f.darkMean, userdata)
}
