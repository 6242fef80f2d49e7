// Package config provides configuration management for sweepline.
//
// A single Config holds every section a command may need:
//
//   - Sweep: experiment kind, parameter space, data file, store mode
//   - Invoker: analysis program, timeout, timeout wrapper
//   - Report: plotting backend and terminal
//   - Observability: logging, metrics textfile, tracing
//   - Publish: S3 or GCS target for artifacts
//   - Stream: Kafka mirror of records
//
// # Loading
//
// Load layers three sources, later ones winning: the defaults from
// NewConfig, a YAML file, and SWEEPLINE_* environment variables. The file
// may reference the environment with ${VAR} or ${VAR:-default}:
//
//	sweep:
//	  experiment: coverage
//	  data: data/coverage.${OBJECT}.dat
//	  space:
//	    object: ${OBJECT:-msq}
//	    adds: 1..4
//	    removes: [1, 2]
//	invoker:
//	  program: ./checkfence
//	  timeout: 10m
//
// Ranges accept "lo..hi", a comma list, an integer or a YAML list.
//
//	SWEEPLINE_SWEEP_SPACE_ADDS=2..3 sweepline sweep -c coverage.yaml
//
// Commands that bind flags call NewViper, bind, then Decode.
package config
