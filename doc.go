// Package sweepline runs parameter sweeps over a concurrency analysis
// program and turns the results into figures.
//
// A sweep walks a parameter space (object, mode, adds, removes, delays,
// barriers and repeated trials), runs the program once per point, extracts
// a fixed set of fields from each run's output and appends one row per run
// to a whitespace separated data file. Reports read those files back,
// filter, average and normalize them, and render gnuplot scripts.
//
// # Architecture
//
//   - pkg/schema: experiment kinds and the regular expressions that pull
//     fields out of program output
//   - pkg/sweep: parameter ranges and point enumeration
//   - pkg/invoker: running the program under a time budget
//   - pkg/store: the tabular data file format
//   - pkg/aggregate: filter, sort, group-reduce and derived columns
//   - pkg/report: gnuplot scripts and the built-in figures
//   - internal/pipeline: the sweep loop and its sinks
//
// Around the core, pkg/stream mirrors records to Kafka, pkg/export writes
// JSON lines, Arrow and Avro, pkg/publish uploads artifacts to S3 or GCS,
// and pkg/metrics and pkg/observability provide Prometheus metrics, traces
// and host facts.
//
// # Quick Start
//
//	sweepline sweep -e coverage -o msq --adds 1..2 --removes 1..2 \
//	    --delays 0..4 --barriers 0..4 -p ./checkfence -d data/coverage.msq.dat
//	sweepline report coverage data/coverage.msq.dat
//
// See cmd/sweepline for every command and examples/sweepline.yaml for a
// configuration file.
package sweepline
