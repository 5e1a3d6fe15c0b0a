package mightex

import (
	"strconv"
	"strings"
)

// ConfigureFilter selects the filter by name.  Recognized names are
// "default", "none" and "threshold:<level>", the forms FilterName reports.
func (s *Session) ConfigureFilter(name string) error {
	switch {
	case name == "default":
		s.ResetFilter()
	case name == "none":
		s.SetFilter(nil)
	case strings.HasPrefix(name, "threshold:"):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "threshold:"), 10, 16)
		if err != nil {
			return invalidConfig("threshold level %q", name)
		}
		s.SetFilter(Threshold{Level: uint16(n)})
	default:
		return invalidConfig("unknown filter %q", name)
	}
	return nil
}

// ConfigureEstimator selects the estimator by name.  Recognized names are
// "default", "peak", "mean" and "weighted-mean:<factor>".
func (s *Session) ConfigureEstimator(name string) error {
	switch {
	case name == "default":
		s.ResetEstimator()
	case name == "peak":
		s.SetEstimator(Peak{})
	case name == "mean":
		s.SetEstimator(Mean{})
	case strings.HasPrefix(name, "weighted-mean:"):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "weighted-mean:"), 10, 16)
		if err != nil {
			return invalidConfig("weighted mean factor %q", name)
		}
		s.SetEstimator(WeightedMean{Factor: uint16(n)})
	default:
		return invalidConfig("unknown estimator %q", name)
	}
	return nil
}
