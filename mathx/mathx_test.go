package mathx_test

import (
	"fmt"
	"testing"

	"github.jpl.nasa.gov/bdube/linescan/mathx"
)

func ExampleSteps() {
	fmt.Println(mathx.Steps(2.46, 0.1))
	// Output: 25
}

func TestStepsNegative(t *testing.T) {
	if s := mathx.Steps(-2.46, 0.1); s != -25 {
		t.Errorf("expected -25, got %d", s)
	}
}

func TestRound(t *testing.T) {
	out := mathx.Round(12.345, 0.1)
	if out < 12.29999 || out > 12.30001 {
		t.Errorf("expected 12.3, got %f", out)
	}
}
