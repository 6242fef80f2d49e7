package schema

import "fmt"

// Output lines reported by the analysis program.
const (
	dimensionsLine = `w/ (\d+) adds, (\d+) removes, (\d+) delays, (\d+) barriers\.`
	schedulesLine  = `(\d+) schedules enumerated in ([\d.]+)s\.`
	lineUpLine     = `Line-Up found (\d+) violations / (\d+) histories; Operation-Counting covers (\d+)\.`
	countingLine   = `Operation-Counting found (\d+) violations / (\d+) histories\.`
	violationsLine = `Found (\d+) violations\.`
	// depthLine is printed once per approximation round k
	depthLine = `Operation-Counting\(k=%d\) covers (\d+) / (\d+) histories\.`
)

var (
	// Dimensions echoes the operation counts the program actually ran with
	Dimensions = MustNew("dimensions",
		TextGroup("adds", dimensionsLine, 1),
		TextGroup("removes", dimensionsLine, 2),
		TextGroup("delays", dimensionsLine, 3),
		TextGroup("barriers", dimensionsLine, 4),
	)

	// Default adds the schedule count and elapsed time every mode reports
	Default = Dimensions.MustExtend("default",
		TextGroup("executions", schedulesLine, 1),
		TextGroup("time", schedulesLine, 2),
	)

	// Coverage compares Line-Up violations against Operation-Counting.
	// Column order matches the historical coverage.<object>.dat files:
	// bad_histories is column 8, covered 9 and c_histories 11.
	Coverage = Default.MustExtend("coverage",
		TextGroup("bad_executions", lineUpLine, 1),
		TextGroup("bad_histories", lineUpLine, 2),
		TextGroup("covered", lineUpLine, 3),
		TextGroup("c_executions", countingLine, 1),
		TextGroup("c_histories", countingLine, 2),
	)

	// Runtime records how long each monitoring mode takes. Object and mode
	// come from the invocation because the program does not print them.
	Runtime = MustNew("runtime",
		FromParam("object"),
		FromParam("mode"),
		FromParam("trial"),
	).MustExtend("runtime",
		append(Default.Fields(), Text("violations", violationsLine))...,
	)
)

// DepthField names the per-depth coverage columns, e.g. c2_covered
func DepthField(k int, metric string) string {
	return fmt.Sprintf("c%d_%s", k, metric)
}

// CoverageDepth returns the coverage schema extended with one covered and
// one histories column per approximation depth k = 0..maxDepth.
func CoverageDepth(maxDepth int) (*Schema, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("depth must be non-negative, got %d", maxDepth)
	}
	family := Family(0, maxDepth, func(k int) []Field {
		line := fmt.Sprintf(depthLine, k)
		return []Field{
			TextGroup(DepthField(k, "covered"), line, 1),
			TextGroup(DepthField(k, "histories"), line, 2),
		}
	})
	return Coverage.Extend(fmt.Sprintf("coverage-depth-%d", maxDepth), family...)
}
