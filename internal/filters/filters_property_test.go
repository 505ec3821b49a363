//go:build property

package filters

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSliceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("text slice length is end - start + 1", prop.ForAll(
		func(s string, a, b int) bool {
			n := Length(s).(int)
			if n == 0 {
				return true
			}
			start, end := a%n, b%n
			if start > end {
				start, end = end, start
			}
			out, err := Slice(s, start, end, true)
			if err != nil {
				return false
			}
			return Length(out).(int) == end-start+1
		},
		gen.AnyString(),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.Property("sequence slice length is end - start + 1", prop.ForAll(
		func(xs []int, a, b int) bool {
			if len(xs) == 0 {
				return true
			}
			start, end := a%len(xs), b%len(xs)
			if start > end {
				start, end = end, start
			}
			out, err := Slice(xs, start, end, true)
			if err != nil {
				return false
			}
			return Length(out).(int) == end-start+1
		},
		gen.SliceOf(gen.Int()),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.Property("sort output is ordered", prop.ForAll(
		func(xs []string) bool {
			out, err := Sort(xs)
			if err != nil {
				return false
			}
			sorted := out.([]string)
			for i := 1; i < len(sorted); i++ {
				if sorted[i-1] > sorted[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
