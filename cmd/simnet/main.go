// Command simnet runs the deterministic peer-to-peer consensus simulation.
//
// Grounded on original_source/main.py's parse_args/run split, and on
// LarryRuane-minesim's flat func main() shape.
package main

import (
	"errors"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/haphan2706/consensus-simnet/internal/config"
	"github.com/haphan2706/consensus-simnet/internal/logging"
	"github.com/haphan2706/consensus-simnet/internal/node"
	"github.com/haphan2706/consensus-simnet/internal/sim"
)

func main() {
	console := logging.Console("simnet")

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		console.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		console.Error().Err(err).Msg("simulation halted")
		os.Exit(1)
	}
}

// parseConfig parses CLI args into a Config, overlaying spec.md §6's
// defaults, and validates it before the simulation starts (a
// configuration error per spec.md §7).
func parseConfig(args []string) (config.Config, error) {
	cfg := config.Defaults()
	if _, err := flags.ParseArgs(&cfg, args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return cfg, fmt.Errorf("parsing flags: %w", err)
	}
	cfg.ApplyDerived()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// run opens the log sink, wires the driver, and runs the simulation to
// completion, writing a final error record on a fatal invariant
// violation per spec.md §6 ("Exit code ... non-zero on fatal invariant
// violation, with a final {type:"error", error:<message>} record").
func run(cfg config.Config) error {
	sink, err := logging.Open(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer sink.Close()

	d := sim.New(cfg, sink)
	if err := d.Run(); err != nil {
		var fatal *node.FatalInvariantError
		msg := err.Error()
		if errors.As(err, &fatal) {
			msg = fatal.Error()
		}
		sink.Emit(logging.F("type", "error"), logging.F("error", msg))
		return err
	}
	return nil
}
