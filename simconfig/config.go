// Package simconfig holds the in-memory configuration record for a
// queuesim run (spec §6). There is deliberately no file or
// environment-variable loading here — the caller already has a Config
// in memory; reading one from disk is out of scope (spec §1).
package simconfig

import (
	"fmt"

	"github.com/terminal-bench/queuesim/internal/distribution"
	"github.com/terminal-bench/queuesim/simerrors"
)

const routingSumEpsilon = 1e-9

// Config is the complete description of a queueing network run.
// Mapping keys are always node names drawn from Nodes.
type Config struct {
	Nodes          []string
	ArrivalDists   map[string]distribution.Sampler
	ServiceDists   map[string]distribution.Sampler
	Servers        map[string]int
	Priorities     map[string][]int
	PatienceDists  map[string]distribution.Sampler
	BreakdownDists map[string]distribution.Sampler
	RepairDists    map[string]distribution.Sampler
	RoutingMatrix  map[string]map[string]float64

	SimTime    float64
	Warmup     float64
	BatchCount int
	Seed       int64
}

// Validate checks every rule in spec §7 and returns the first
// violation found. A nil return means the Config is safe to run:
// configuration errors must surface before any event is scheduled.
func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return simerrors.NewConfigurationError("nodes", "at least one node is required")
	}

	known := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if known[n] {
			return simerrors.NewConfigurationError("nodes", fmt.Sprintf("duplicate node name %q", n))
		}
		known[n] = true
	}

	for node := range c.ArrivalDists {
		if !known[node] {
			return simerrors.NewConfigurationError("arrival_dists", fmt.Sprintf("unknown node %q", node))
		}
	}
	for node := range c.PatienceDists {
		if !known[node] {
			return simerrors.NewConfigurationError("patience_dists", fmt.Sprintf("unknown node %q", node))
		}
	}
	for node := range c.BreakdownDists {
		if !known[node] {
			return simerrors.NewConfigurationError("breakdown_dists", fmt.Sprintf("unknown node %q", node))
		}
	}
	for node := range c.RepairDists {
		if !known[node] {
			return simerrors.NewConfigurationError("repair_dists", fmt.Sprintf("unknown node %q", node))
		}
	}
	for node := range c.ServiceDists {
		if !known[node] {
			return simerrors.NewConfigurationError("service_dists", fmt.Sprintf("unknown node %q", node))
		}
	}
	for node := range c.Servers {
		if !known[node] {
			return simerrors.NewConfigurationError("servers", fmt.Sprintf("unknown node %q", node))
		}
	}
	for node := range c.Priorities {
		if !known[node] {
			return simerrors.NewConfigurationError("priorities", fmt.Sprintf("unknown node %q", node))
		}
	}

	for _, node := range c.Nodes {
		if _, ok := c.ServiceDists[node]; !ok {
			return simerrors.NewConfigurationError("service_dists", fmt.Sprintf("missing required entry for node %q", node))
		}

		servers, ok := c.Servers[node]
		if !ok || servers <= 0 {
			return simerrors.NewConfigurationError("servers", fmt.Sprintf("node %q must have a positive server count", node))
		}

		priorities, ok := c.Priorities[node]
		if !ok || len(priorities) == 0 {
			return simerrors.NewConfigurationError("priorities", fmt.Sprintf("node %q must declare at least one priority class", node))
		}

		if _, hasBreakdown := c.BreakdownDists[node]; hasBreakdown {
			if _, hasRepair := c.RepairDists[node]; !hasRepair {
				return simerrors.NewConfigurationError("repair_dists", fmt.Sprintf("node %q has a breakdown distribution but no repair distribution", node))
			}
		}
	}

	for origin, row := range c.RoutingMatrix {
		if !known[origin] {
			return simerrors.NewConfigurationError("routing_matrix", fmt.Sprintf("unknown origin node %q", origin))
		}
		sum := 0.0
		for target, p := range row {
			if !known[target] {
				return simerrors.NewConfigurationError("routing_matrix", fmt.Sprintf("unknown target node %q for origin %q", target, origin))
			}
			if p < 0 {
				return simerrors.NewConfigurationError("routing_matrix", fmt.Sprintf("negative probability for %q -> %q", origin, target))
			}
			sum += p
		}
		if sum > 1+routingSumEpsilon {
			return simerrors.NewConfigurationError("routing_matrix", fmt.Sprintf("origin %q routing probabilities sum to %f > 1", origin, sum))
		}
	}

	if c.SimTime <= 0 {
		return simerrors.NewConfigurationError("sim_time", "must be positive")
	}
	if c.Warmup < 0 || c.Warmup > c.SimTime {
		return simerrors.NewConfigurationError("warmup", "must be in [0, sim_time]")
	}
	if c.BatchCount <= 0 {
		return simerrors.NewConfigurationError("batch_count", "must be a positive integer")
	}

	return nil
}
