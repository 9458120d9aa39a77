// Package node implements one service node's waiting lines and server
// pool (spec §4.5). Node holds data and the small queries/mutations
// the engine's dispatch handlers need; the handlers themselves (which
// also touch the shared EventQueue, RNG, and other nodes for routing)
// live in internal/engine, matching the teacher's separation between
// pkg/orderbook (pure book state) and internal/matching (orchestration).
package node

import (
	"sort"

	"github.com/terminal-bench/queuesim/internal/distribution"
	"github.com/terminal-bench/queuesim/internal/event"
	"github.com/terminal-bench/queuesim/internal/server"
	"github.com/terminal-bench/queuesim/internal/stats"
)

// Node is one service node: a server pool, priority-ordered FIFO
// waiting lines, its distributions, its routing row, and its stats.
type Node struct {
	Name string

	Servers []*server.Server

	// priorities holds priority class values in ascending order
	// (smaller = higher priority), fixed at construction — never an
	// unordered map, per spec §9's determinism note.
	priorities []int
	lines      map[int][]*event.Customer

	ServiceDist   distribution.Sampler
	ArrivalDist   distribution.Sampler // nil => no external arrivals
	PatienceDist  distribution.Sampler // nil => no reneging
	BreakdownDist distribution.Sampler // nil => no breakdowns
	RepairDist    distribution.Sampler

	// RoutingTargets is sorted by name at construction (spec §4.5,
	// §9): routing draws walk targets in this fixed order.
	RoutingTargets []string
	RoutingRow     map[string]float64

	Stats *stats.Stats

	arrivalCursor int
}

// New constructs a Node with numServers IDLE servers and empty waiting
// lines for each of the given priority classes.
func New(name string, numServers int, priorities []int, routingRow map[string]float64) *Node {
	sorted := append([]int(nil), priorities...)
	sort.Ints(sorted)

	servers := make([]*server.Server, numServers)
	for i := range servers {
		servers[i] = server.New(name, i)
	}

	lines := make(map[int][]*event.Customer, len(sorted))
	for _, p := range sorted {
		lines[p] = nil
	}

	targets := make([]string, 0, len(routingRow))
	for t := range routingRow {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	return &Node{
		Name:           name,
		Servers:        servers,
		priorities:     sorted,
		lines:          lines,
		RoutingTargets: targets,
		RoutingRow:     routingRow,
		Stats:          stats.New(numServers),
	}
}

// Enqueue appends c to the tail of its priority class's line (FIFO).
func (n *Node) Enqueue(c *event.Customer) {
	n.lines[c.Priority] = append(n.lines[c.Priority], c)
}

// DequeueHighestPriority removes and returns the head of the
// non-empty line with the lowest priority value, or nil if every line
// is empty.
func (n *Node) DequeueHighestPriority() *event.Customer {
	for _, p := range n.priorities {
		line := n.lines[p]
		if len(line) == 0 {
			continue
		}
		c := line[0]
		n.lines[p] = line[1:]
		return c
	}
	return nil
}

// RequeueAtHead puts c back at the front of its priority class's line,
// preserving FIFO order among the remaining waiters (spec §4.4, used
// when a server breaks down mid-service).
func (n *Node) RequeueAtHead(c *event.Customer) {
	n.lines[c.Priority] = append([]*event.Customer{c}, n.lines[c.Priority]...)
}

// Remove deletes c from its priority class's line, if still present —
// used by renege. Returns true if c was found and removed.
func (n *Node) Remove(c *event.Customer) bool {
	line := n.lines[c.Priority]
	for i, candidate := range line {
		if candidate == c {
			n.lines[c.Priority] = append(line[:i:i], line[i+1:]...)
			return true
		}
	}
	return false
}

// QueueLength is the total number of customers waiting across every
// priority class (not counting customers in service).
func (n *Node) QueueLength() int {
	total := 0
	for _, p := range n.priorities {
		total += len(n.lines[p])
	}
	return total
}

// IdleServer returns the lowest-index IDLE server, or nil if none.
// Lowest-index selection is used both for dispatch and for breakdown
// target selection (spec §9 Open Questions: fixed to lowest-index for
// determinism).
func (n *Node) IdleServer() *server.Server {
	for _, s := range n.Servers {
		if s.State == server.Idle {
			return s
		}
	}
	return nil
}

// BreakdownTarget returns the lowest-index server that is not already
// DOWN, or nil if every server is already down.
func (n *Node) BreakdownTarget() *server.Server {
	for _, s := range n.Servers {
		if s.State != server.Down {
			return s
		}
	}
	return nil
}

// Snapshot is a read-only view of a Node's live state, for tests
// asserting invariants (e.g. queue_length(t) >= 0, population
// conservation) without reaching into unexported fields.
type Snapshot struct {
	Name          string
	QueueLength   int
	ServerStates  []server.State
	BusyCount     int
	DownCount     int
	IdleCount     int
}

// Snapshot captures the node's current state.
func (n *Node) Snapshot() Snapshot {
	states := make([]server.State, len(n.Servers))
	s := Snapshot{Name: n.Name, QueueLength: n.QueueLength()}
	for i, srv := range n.Servers {
		states[i] = srv.State
		switch srv.State {
		case server.Busy:
			s.BusyCount++
		case server.Down:
			s.DownCount++
		case server.Idle:
			s.IdleCount++
		}
	}
	s.ServerStates = states
	return s
}

// NextArrivalPriority cycles through the node's declared priority
// classes in ascending order, one per external arrival. Spec §6 ties a
// priority value to each arrival but leaves the assignment policy for
// a node's external stream open; round-robin is deterministic and
// needs no extra RNG draw (documented in DESIGN.md).
func (n *Node) NextArrivalPriority() int {
	if len(n.priorities) == 0 {
		return 0
	}
	p := n.priorities[n.arrivalCursor%len(n.priorities)]
	n.arrivalCursor++
	return p
}
