// Package server implements the three-state machine for one service
// channel at a node (spec §4.4). The State/String() pairing is
// patterned after the teacher's pkg/circuit.State, minus the atomic
// bookkeeping: a Server is mutated only from the Engine's single
// dispatch goroutine (spec §5), so plain fields are correct.
package server

import "github.com/terminal-bench/queuesim/internal/event"

// State is one of IDLE, BUSY, DOWN.
type State int

const (
	Idle State = iota
	Busy
	Down
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// Server is one service channel at a Node. Invariants (spec §3):
// Busy <=> CurrentCustomer != nil <=> ActiveDepartureEventID != 0;
// Down => CurrentCustomer == nil; Idle => both zero/nil.
type Server struct {
	NodeName               string
	Index                  int
	State                  State
	CurrentCustomer        *event.Customer
	ActiveDepartureEventID int64
}

// New returns an IDLE server with no assigned customer.
func New(nodeName string, index int) *Server {
	return &Server{NodeName: nodeName, Index: index, State: Idle}
}

// StartService transitions IDLE -> BUSY with customer c and the
// departure event id that will complete its service.
func (s *Server) StartService(c *event.Customer, departureEventID int64) {
	s.State = Busy
	s.CurrentCustomer = c
	s.ActiveDepartureEventID = departureEventID
}

// CompleteService transitions BUSY -> IDLE on normal departure,
// returning the customer that just finished.
func (s *Server) CompleteService() *event.Customer {
	c := s.CurrentCustomer
	s.State = Idle
	s.CurrentCustomer = nil
	s.ActiveDepartureEventID = 0
	return c
}

// Breakdown transitions the server to DOWN. If it was BUSY, the
// in-service customer is returned to the caller so it can be requeued
// at the head of its priority line (spec §4.4), along with the id of
// its now-stale departure event so the caller can invalidate it.
func (s *Server) Breakdown() (displaced *event.Customer, staleDepartureEventID int64) {
	if s.State == Busy {
		displaced = s.CurrentCustomer
		staleDepartureEventID = s.ActiveDepartureEventID
	}
	s.State = Down
	s.CurrentCustomer = nil
	s.ActiveDepartureEventID = 0
	return displaced, staleDepartureEventID
}

// Repair transitions DOWN -> IDLE.
func (s *Server) Repair() {
	s.State = Idle
}
