// Package engine implements the event-dispatch loop and the six
// per-Kind handlers from spec §4.5–§4.7. It owns the EventQueue and
// every Node/Server/Customer for one replication; nothing outside the
// dispatch loop mutates that state (spec §5).
//
// Adapted from the teacher's internal/matching.Engine: that engine ran
// a background ticker driving asynchronous order-book matching behind
// mutexes shared across goroutines. A replication here is strictly
// single-threaded (spec §5), so the ticker and every mutex are
// dropped; Start/Run collapses into one synchronous pop-dispatch loop.
package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/queuesim/internal/event"
	"github.com/terminal-bench/queuesim/internal/node"
	"github.com/terminal-bench/queuesim/internal/rng"
	"github.com/terminal-bench/queuesim/internal/server"
	"github.com/terminal-bench/queuesim/internal/stats"
	"github.com/terminal-bench/queuesim/simconfig"
	"github.com/terminal-bench/queuesim/simerrors"
)

// NodeResult is one node's contribution to a replication's Result.
type NodeResult struct {
	MeanQueueLength    float64
	ServerUtilization  float64
	ServiceCompletions int
	ReneProbability    float64
	MeanWaitingTime    float64
	MeanSystemTime     float64
	ArrivalsTotal      int
	RenegedTotal       int
}

// Result is a single replication's outcome (spec §3, plus the
// ReplicationIndex BatchDriver needs to report which index a logged
// failure belongs to).
type Result struct {
	ReplicationIndex int
	Throughput       float64
	Nodes            map[string]NodeResult
}

// Engine runs exactly one replication.
type Engine struct {
	cfg   *simconfig.Config
	rng   *rng.Stream
	queue *event.Queue
	nodes map[string]*node.Node
	order []string // cfg.Nodes, fixed iteration order

	replicationIndex int
	nextEventID      int64
	nextCustomerID   int64
	now              float64
	warmupDone       bool

	log zerolog.Logger
}

// New validates cfg and builds an Engine ready to Run, seeded with
// seed (the caller, typically BatchDriver, derives one seed per
// replication from the configuration's base seed per spec §4.8).
// replicationIndex is carried through to Result for log/telemetry
// correlation only; it does not affect simulation semantics. logger
// may be the zero value; queuesim then logs nothing.
func New(cfg *simconfig.Config, seed int64, replicationIndex int, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:              cfg,
		rng:              rng.New(seed),
		queue:            event.NewQueue(),
		nodes:            make(map[string]*node.Node, len(cfg.Nodes)),
		order:            append([]string(nil), cfg.Nodes...),
		replicationIndex: replicationIndex,
		log:              logger,
	}

	for _, name := range cfg.Nodes {
		n := node.New(name, cfg.Servers[name], cfg.Priorities[name], cfg.RoutingMatrix[name])
		n.ServiceDist = cfg.ServiceDists[name]
		n.ArrivalDist = cfg.ArrivalDists[name]
		n.PatienceDist = cfg.PatienceDists[name]
		n.BreakdownDist = cfg.BreakdownDists[name]
		n.RepairDist = cfg.RepairDists[name]
		e.nodes[name] = n
	}

	return e, nil
}

func (e *Engine) allocEventID() int64 {
	e.nextEventID++
	return e.nextEventID
}

func (e *Engine) allocCustomerID() int64 {
	e.nextCustomerID++
	return e.nextCustomerID
}

// Run executes the full replication lifecycle (spec §4.7) and returns
// the per-node, per-replication Result. The only errors returned are
// simerrors.InvariantViolation and simerrors.NumericDomainError — both
// fatal and never retried, since the simulation is deterministic and a
// failure is reproducible (spec §7).
func (e *Engine) Run() (*Result, error) {
	if err := e.init(); err != nil {
		return nil, err
	}

	for {
		_, ok, err := e.Step()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}

	if !e.warmupDone {
		e.checkpointWarmup()
	}
	e.finalize()

	return e.buildResult(), nil
}

// Step pops and dispatches exactly one event, advancing the clock to
// its time. Run loops over Step until the queue is exhausted or
// cfg.SimTime is passed; Step is exposed directly so callers (tests,
// tracers) can observe Node/Server state between individual events —
// e.g. to confirm the Kind-then-ID tie-break rule (spec §9) holds at
// the Engine level rather than only at the raw EventQueue. ok is false
// once nothing more is due before cfg.SimTime.
func (e *Engine) Step() (ev *event.Event, ok bool, err error) {
	popped, has := e.queue.PopMin()
	if !has || popped.Time > e.cfg.SimTime {
		return nil, false, nil
	}
	if !e.warmupDone && popped.Time >= e.cfg.Warmup {
		e.checkpointWarmup()
	}
	e.now = popped.Time

	if err := e.dispatch(popped); err != nil {
		return popped, true, err
	}
	return popped, true, nil
}

func (e *Engine) checkpointWarmup() {
	for _, name := range e.order {
		e.nodes[name].Stats.WarmupReset(e.cfg.Warmup)
	}
	e.warmupDone = true
	e.log.Debug().Float64("warmup", e.cfg.Warmup).Msg("warmup checkpoint")
}

func (e *Engine) finalize() {
	for _, name := range e.order {
		e.nodes[name].Stats.Finalize(e.cfg.SimTime)
	}
}

func (e *Engine) buildResult() *Result {
	d := e.cfg.SimTime - e.cfg.Warmup
	result := &Result{ReplicationIndex: e.replicationIndex, Nodes: make(map[string]NodeResult, len(e.order))}

	totalCompletions := 0
	for _, name := range e.order {
		n := e.nodes[name]
		m := n.Stats.Metrics(d, len(n.Servers))
		result.Nodes[name] = NodeResult{
			MeanQueueLength:    m.MeanQueueLength,
			ServerUtilization:  m.ServerUtilization,
			ServiceCompletions: m.ServiceCompletions,
			ReneProbability:    m.ReneProbability,
			MeanWaitingTime:    m.MeanWaitingTime,
			MeanSystemTime:     m.MeanSystemTime,
			ArrivalsTotal:      m.ArrivalsTotal,
			RenegedTotal:       m.RenegedTotal,
		}
		totalCompletions += m.CompletedServices
	}

	if d > 0 {
		result.Throughput = float64(totalCompletions) / d
	}
	return result
}

func (e *Engine) init() error {
	for _, name := range e.order {
		n := e.nodes[name]
		if n.ArrivalDist == nil {
			continue
		}
		c := &event.Customer{
			ID:                e.allocCustomerID(),
			Priority:          n.NextArrivalPriority(),
			ArrivalTimeSystem: 0,
			OriginNode:        name,
		}
		e.queue.Push(&event.Event{
			ID: e.allocEventID(), Time: 0, Kind: event.KindArrival,
			NodeName: name, Customer: c, ExternalArrival: true,
		})
	}

	for _, name := range e.order {
		n := e.nodes[name]
		if n.BreakdownDist == nil {
			continue
		}
		for _, s := range n.Servers {
			d, err := n.BreakdownDist.Sample(e.rng)
			if err != nil {
				return err
			}
			e.queue.Push(&event.Event{
				ID: e.allocEventID(), Time: d, Kind: event.KindBreakdown,
				NodeName: name, ServerIndex: s.Index,
			})
		}
	}

	return nil
}

func (e *Engine) dispatch(ev *event.Event) error {
	n, ok := e.nodes[ev.NodeName]
	if !ok {
		return simerrors.NewInvariantViolation("dispatch", fmt.Sprintf("event %d targets unknown node %q", ev.ID, ev.NodeName))
	}

	switch ev.Kind {
	case event.KindArrival:
		return e.handleArrival(n, ev)
	case event.KindDeparture:
		return e.handleDeparture(n, ev)
	case event.KindRouting:
		return e.handleRouting(n, ev)
	case event.KindRenege:
		return e.handleRenege(n, ev)
	case event.KindBreakdown:
		return e.handleBreakdown(n, ev)
	case event.KindRepair:
		return e.handleRepair(n, ev)
	default:
		return simerrors.NewInvariantViolation("dispatch", fmt.Sprintf("event %d has unknown kind %v", ev.ID, ev.Kind))
	}
}

// handleArrival implements spec §4.5 "On arrival".
func (e *Engine) handleArrival(n *node.Node, ev *event.Event) error {
	c := ev.Customer
	c.ArrivalTimeNode = e.now
	n.Stats.RecordArrival()
	n.Enqueue(c)
	n.Stats.SetQueueLength(e.now, n.QueueLength())

	if n.PatienceDist != nil {
		if err := e.armRenege(n, c); err != nil {
			return err
		}
	}

	if err := e.runDispatch(n); err != nil {
		return err
	}

	if ev.ExternalArrival && n.ArrivalDist != nil {
		d, err := n.ArrivalDist.Sample(e.rng)
		if err != nil {
			return err
		}
		next := &event.Customer{
			ID:                e.allocCustomerID(),
			Priority:          n.NextArrivalPriority(),
			ArrivalTimeSystem: e.now + d,
			OriginNode:        n.Name,
		}
		e.queue.Push(&event.Event{
			ID: e.allocEventID(), Time: e.now + d, Kind: event.KindArrival,
			NodeName: n.Name, Customer: next, ExternalArrival: true,
		})
	}
	return nil
}

// armRenege samples the node's patience distribution and schedules a
// renege event for c, storing its id on the customer (spec §4.5).
func (e *Engine) armRenege(n *node.Node, c *event.Customer) error {
	d, err := n.PatienceDist.Sample(e.rng)
	if err != nil {
		return err
	}
	id := e.allocEventID()
	c.PendingRenegeEventID = id
	e.queue.Push(&event.Event{
		ID: id, Time: e.now + d, Kind: event.KindRenege,
		NodeName: n.Name, Customer: c,
	})
	return nil
}

// runDispatch implements the dispatch rule (spec §4.5, steps 1-5). At
// most one customer is assigned per call — this is not a drain loop.
// It is called from the arrival, departure and repair handlers, each of
// which adds at most one waiting customer or frees at most one server.
// handleBreakdown requeues a displaced customer without calling it, so
// after a breakdown a customer can wait while another server is idle
// until a later arrival, departure or repair at the node assigns it.
func (e *Engine) runDispatch(n *node.Node) error {
	s := n.IdleServer()
	if s == nil {
		return nil
	}
	c := n.DequeueHighestPriority()
	if c == nil {
		return nil
	}
	n.Stats.SetQueueLength(e.now, n.QueueLength())

	if c.PendingRenegeEventID != 0 {
		e.queue.Invalidate(c.PendingRenegeEventID)
		c.PendingRenegeEventID = 0
	}

	d, err := n.ServiceDist.Sample(e.rng)
	if err != nil {
		return err
	}
	depID := e.allocEventID()
	n.Stats.ServerBusyStart(e.now, s.Index)
	s.StartService(c, depID)
	e.queue.Push(&event.Event{
		ID: depID, Time: e.now + d, Kind: event.KindDeparture,
		NodeName: n.Name, ServerIndex: s.Index, Customer: c,
	})

	n.Stats.RecordWaitingTime(e.now - c.ArrivalTimeNode)
	return nil
}

// handleDeparture implements spec §4.5 "On departure".
func (e *Engine) handleDeparture(n *node.Node, ev *event.Event) error {
	if ev.ServerIndex < 0 || ev.ServerIndex >= len(n.Servers) {
		return simerrors.NewInvariantViolation("departure", fmt.Sprintf("event %d targets unknown server %d on node %q", ev.ID, ev.ServerIndex, n.Name))
	}
	s := n.Servers[ev.ServerIndex]
	if s.State != server.Busy || s.ActiveDepartureEventID != ev.ID {
		return simerrors.NewInvariantViolation("departure", fmt.Sprintf("server %d on node %q is not BUSY with event %d", ev.ServerIndex, n.Name, ev.ID))
	}

	c := s.CompleteService()
	n.Stats.ServerBusyEnd(e.now, s.Index)
	n.Stats.RecordCompletion()

	e.queue.Push(&event.Event{
		ID: e.allocEventID(), Time: e.now, Kind: event.KindRouting,
		NodeName: n.Name, Customer: c,
	})

	return e.runDispatch(n)
}

// handleRouting implements spec §4.5 "On routing".
func (e *Engine) handleRouting(n *node.Node, ev *event.Event) error {
	c := ev.Customer
	u := e.rng.Float64()

	cumulative := 0.0
	for _, target := range n.RoutingTargets {
		cumulative += n.RoutingRow[target]
		if u < cumulative {
			e.queue.Push(&event.Event{
				ID: e.allocEventID(), Time: e.now, Kind: event.KindArrival,
				NodeName: target, Customer: c,
			})
			return nil
		}
	}

	// Residual probability: customer exits the system here.
	n.Stats.RecordSystemTime(e.now - c.ArrivalTimeSystem)
	return nil
}

// handleRenege implements spec §4.5 "On renege".
func (e *Engine) handleRenege(n *node.Node, ev *event.Event) error {
	c := ev.Customer
	if !n.Remove(c) {
		// Already dispatched; this stale event should have been
		// invalidated by runDispatch, but spec §4.5 treats a
		// not-found customer as a no-op rather than a bug.
		return nil
	}
	n.Stats.SetQueueLength(e.now, n.QueueLength())
	n.Stats.RecordReneged()
	return nil
}

// handleBreakdown implements spec §4.5 "On breakdown". The event is
// bound to the server it was originally scheduled for; if that server
// already went DOWN from an earlier, not-yet-repaired breakdown, the
// engine falls back to the lowest-index non-DOWN server (spec §9's
// "select a target server deterministically" — documented resolution
// in DESIGN.md). The breakdown chain for the originally-bound server
// index always continues, even when a given firing is a no-op.
func (e *Engine) handleBreakdown(n *node.Node, ev *event.Event) error {
	if ev.ServerIndex < 0 || ev.ServerIndex >= len(n.Servers) {
		return simerrors.NewInvariantViolation("breakdown", fmt.Sprintf("event %d targets unknown server %d on node %q", ev.ID, ev.ServerIndex, n.Name))
	}

	target := n.Servers[ev.ServerIndex]
	if target.State == server.Down {
		target = n.BreakdownTarget()
	}

	if target != nil {
		if target.State == server.Busy {
			n.Stats.ServerBusyEnd(e.now, target.Index)
		}
		displaced, staleDepartureID := target.Breakdown()
		n.Stats.ServerDownStart(e.now, target.Index)
		e.log.Debug().Str("node", n.Name).Int("server", target.Index).Float64("time", e.now).Msg("server breakdown")

		if displaced != nil {
			e.queue.Invalidate(staleDepartureID)
			n.RequeueAtHead(displaced)
			n.Stats.SetQueueLength(e.now, n.QueueLength())
			if n.PatienceDist != nil {
				if err := e.armRenege(n, displaced); err != nil {
					return err
				}
			}
		}

		rd, err := n.RepairDist.Sample(e.rng)
		if err != nil {
			return err
		}
		e.queue.Push(&event.Event{
			ID: e.allocEventID(), Time: e.now + rd, Kind: event.KindRepair,
			NodeName: n.Name, ServerIndex: target.Index,
		})
	}

	bd, err := n.BreakdownDist.Sample(e.rng)
	if err != nil {
		return err
	}
	e.queue.Push(&event.Event{
		ID: e.allocEventID(), Time: e.now + bd, Kind: event.KindBreakdown,
		NodeName: n.Name, ServerIndex: ev.ServerIndex,
	})
	return nil
}

// handleRepair implements spec §4.5 "On repair".
func (e *Engine) handleRepair(n *node.Node, ev *event.Event) error {
	if ev.ServerIndex < 0 || ev.ServerIndex >= len(n.Servers) {
		return simerrors.NewInvariantViolation("repair", fmt.Sprintf("event %d targets unknown server %d on node %q", ev.ID, ev.ServerIndex, n.Name))
	}
	s := n.Servers[ev.ServerIndex]
	if s.State != server.Down {
		return simerrors.NewInvariantViolation("repair", fmt.Sprintf("server %d on node %q is not DOWN at repair event %d", ev.ServerIndex, n.Name, ev.ID))
	}
	s.Repair()
	n.Stats.ServerDownEnd(e.now, s.Index)
	e.log.Debug().Str("node", n.Name).Int("server", s.Index).Float64("time", e.now).Msg("server repair")
	return e.runDispatch(n)
}

// Nodes exposes the live node set for tests asserting invariants (spec
// §8.1) mid-run; not used by the dispatch loop itself.
func (e *Engine) Nodes() map[string]*node.Node { return e.nodes }

// Now returns the engine's current simulation clock.
func (e *Engine) Now() float64 { return e.now }
