// Package queuesim is a discrete-event simulator for networks of
// multi-server queues. Callers build a simconfig.Config in memory and
// pass it to Run; there is no file or environment-variable loading, no
// CLI, and no charting surface — those are explicitly out of scope.
package queuesim

import (
	"context"

	"github.com/terminal-bench/queuesim/internal/batch"
	"github.com/terminal-bench/queuesim/simconfig"
)

// Options re-exports batch.Options so callers never need to import
// internal/batch directly.
type Options = batch.Options

// Result re-exports batch.Result, the aggregated outcome of a batch
// run.
type Result = batch.Result

// Run validates cfg and executes cfg.BatchCount independent
// replications, returning the aggregated Result (spec §4.8). Options
// is the zero value's worth of optional dependencies: no logger, no
// telemetry publisher, no metrics registerer.
func Run(ctx context.Context, cfg *simconfig.Config) (*Result, error) {
	return RunWithOptions(ctx, cfg, Options{})
}

// RunWithOptions is Run with explicit optional dependencies wired in
// (structured logging, a telemetry publisher, a Prometheus
// registerer).
func RunWithOptions(ctx context.Context, cfg *simconfig.Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return batch.New(cfg, opts).Run(ctx)
}
