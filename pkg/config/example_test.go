package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/sweepline/pkg/config"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// ExampleNewConfig demonstrates the defaults every command starts from.
func ExampleNewConfig() {
	cfg := config.NewConfig()

	fmt.Printf("Experiment: %s\n", cfg.Sweep.Experiment)
	fmt.Printf("Mode: %s\n", cfg.Sweep.Mode)
	fmt.Printf("Modes: %v\n", cfg.Sweep.Space.Modes)
	fmt.Printf("Terminal: %s\n", cfg.Report.Terminal)

	// Output:
	// Experiment: default
	// Mode: truncate
	// Modes: [counting]
	// Terminal: pdf
}

// ExampleConfig_ValidateSweep shows the checks made before a sweep starts.
func ExampleConfig_ValidateSweep() {
	cfg := config.NewConfig()
	cfg.Sweep.Experiment = "coverage"
	cfg.Sweep.Data = "data/coverage.msq.dat"
	cfg.Sweep.Space.Object = "msq"
	cfg.Sweep.Space.Adds = sweep.MustParseRange("1..3")
	cfg.Invoker.Program = "./checkfence"

	if err := cfg.ValidateSweep(nil); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	fmt.Println("points:", cfg.Sweep.Space.Count())

	// Output:
	// points: 3
}
