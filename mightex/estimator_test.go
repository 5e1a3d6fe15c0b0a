package mightex

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func filtered(t *testing.T, samples []uint16) *Frame {
	t.Helper()
	f := captured(t, samples)
	var s FilterStage
	if err := s.Apply(f, nil); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestWeightedMeanAllBelowThreshold(t *testing.T) {
	var e EstimatorStage
	f := filtered(t, make([]uint16, PixelCount))
	if x := e.Apply(f, nil); x != 0 {
		t.Errorf("expected 0 for an all-zero frame, got %f", x)
	}
	f = filtered(t, uniform(50, 100))
	if x := e.Apply(f, nil); x != 0 {
		t.Errorf("expected 0 when nothing reaches 3x dark, got %f", x)
	}
}

func TestWeightedMeanUniformFrame(t *testing.T) {
	f := filtered(t, uniform(1000, 100))
	if f.DarkMean() != 100 {
		t.Fatalf("expected dark mean 100, got %d", f.DarkMean())
	}
	w := f.Working()
	for i := DarkPixelOffset + DarkPixelCount; i < PixelCount; i++ {
		if w[i] != 900 {
			t.Fatalf("pixel %d: expected 900 after filtering, got %d", i, w[i])
		}
	}
	// the dark pixels filter to zero and fall below threshold, so the
	// centroid is the center of the remaining span
	first := DarkPixelOffset + DarkPixelCount
	want := float64(first+PixelCount-1) / 2
	var e EstimatorStage
	if x := e.Apply(f, nil); math.Abs(x-want) > 1e-9 {
		t.Errorf("expected centroid %f, got %f", want, x)
	}
}

func TestWeightedMeanLocatesSpot(t *testing.T) {
	gen := GaussianLine(2500, 20, 100)
	f := filtered(t, gen(0, 10))
	var e EstimatorStage
	x := e.Apply(f, nil)
	if math.Abs(x-2500) > 0.5 {
		t.Errorf("expected centroid near 2500, got %f", x)
	}
}

func TestWeightedMeanThresholdIsInclusive(t *testing.T) {
	in := uniform(0, 10)
	in[100] = 30 // exactly 3x dark
	in[200] = 29
	f := captured(t, in)
	var e EstimatorStage
	if x := e.Apply(f, nil); x != 100 {
		t.Errorf("expected only pixel 100 to count, got %f", x)
	}
}

func TestEstimatorIsPure(t *testing.T) {
	f := filtered(t, uniform(1000, 100))
	before := f.Working()
	var e EstimatorStage
	e.Set(EstimatorFunc(func(w []uint16, _ uint16, _ interface{}) float64 {
		for i := range w {
			w[i] = 0
		}
		return 1
	}))
	if x := e.Apply(f, nil); x != 1 {
		t.Errorf("expected custom estimator result 1, got %f", x)
	}
	if diff := cmp.Diff(before, f.Working()); diff != "" {
		t.Errorf("estimator modified the working buffer (-want +got):\n%s", diff)
	}
}

func TestEstimatorSetReset(t *testing.T) {
	var e EstimatorStage
	if e.Name() != "default" {
		t.Errorf("expected default estimator, got %s", e.Name())
	}
	e.Set(Peak{})
	if e.Name() != "peak" {
		t.Errorf("expected peak, got %s", e.Name())
	}
	e.Reset()
	if _, ok := e.Active().(WeightedMean); !ok {
		t.Errorf("expected reset to restore WeightedMean, got %T", e.Active())
	}
	e.Set(Mean{})
	e.Set(nil)
	if e.Name() != "default" {
		t.Errorf("expected nil estimator to restore default, got %s", e.Name())
	}
}

func TestPeakAndMean(t *testing.T) {
	in := uniform(10, 10)
	in[3000] = 500
	in[3001] = 500
	f := captured(t, in)
	var e EstimatorStage
	e.Set(Peak{})
	if x := e.Apply(f, nil); x != 3000 {
		t.Errorf("expected peak at 3000, got %f", x)
	}
	e.Set(Mean{})
	want := (10*float64(PixelCount-2) + 1000) / PixelCount
	if x := e.Apply(f, nil); math.Abs(x-want) > 1e-9 {
		t.Errorf("expected mean %f, got %f", want, x)
	}
}
