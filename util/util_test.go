package util_test

import (
	"fmt"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/linescan/util"
)

func ExampleParseDuration() {
	d, _ := util.ParseDuration("25", "ms")
	fmt.Println(d)
	// Output: 25ms
}

func TestAllElementsNumbers(t *testing.T) {
	if !util.AllElementsNumbers("12.5") {
		t.Error("expected 12.5 to be all numbers")
	}
	if util.AllElementsNumbers("12ms") || util.AllElementsNumbers("") {
		t.Error("expected 12ms and the empty string to not be all numbers")
	}
}

func TestParseDurationKeepsUnit(t *testing.T) {
	d, err := util.ParseDuration("2s", "ms")
	if err != nil || d != 2*time.Second {
		t.Errorf("expected 2s, got %v %v", d, err)
	}
	if _, err = util.ParseDuration("soon", "ms"); err == nil {
		t.Error("expected an error for a non duration")
	}
}

func TestMsToDuration(t *testing.T) {
	if d := util.MsToDuration(1.5); d != 1500*time.Microsecond {
		t.Errorf("expected 1.5ms, got %v", d)
	}
}
