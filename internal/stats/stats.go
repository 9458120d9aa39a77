// Package stats implements the per-node time-integral accumulators,
// warmup reset, and the per-replication metric formulas from spec
// §4.6. Deferred accumulation pattern: a quantity's contribution to
// its integral is only folded in when the quantity is about to change
// (or at Finalize), never on a periodic tick.
package stats

// Stats accumulates one node's statistics for one replication.
type Stats struct {
	lastUpdate float64
	queueLen   int

	queueIntegral float64
	busyTime      float64
	downTime      float64

	// busyStart[i]/downStart[i] hold the time server i entered that
	// state, or -1 if it is not currently in it. Indexed accumulation
	// matches spec §4.6: "per-server busy_time and down_time (each
	// computed as a binary 0/1 integral per server, summed into node
	// totals)".
	busyStart []float64
	downStart []float64

	completedServices   int
	arrivalsTotal        int
	renegedTotal         int
	waitingTimeSum       float64
	systemTimeSum        float64
	servedCustomerCount  int
	exitedCount          int
}

// New returns a Stats accumulator for a node with the given server
// count, with the clock starting at t=0.
func New(numServers int) *Stats {
	busyStart := make([]float64, numServers)
	downStart := make([]float64, numServers)
	for i := range busyStart {
		busyStart[i] = -1
		downStart[i] = -1
	}
	return &Stats{busyStart: busyStart, downStart: downStart}
}

func (s *Stats) tick(now float64) {
	elapsed := now - s.lastUpdate
	s.queueIntegral += elapsed * float64(s.queueLen)
	s.lastUpdate = now
}

// SetQueueLength folds the elapsed interval at the prior queue length
// into the integral, then records the new length.
func (s *Stats) SetQueueLength(now float64, n int) {
	s.tick(now)
	s.queueLen = n
}

// ServerBusyStart records that server idx became BUSY at now.
func (s *Stats) ServerBusyStart(now float64, idx int) {
	s.tick(now)
	s.busyStart[idx] = now
}

// ServerBusyEnd folds the elapsed busy interval for server idx into
// busyTime and clears its running start time.
func (s *Stats) ServerBusyEnd(now float64, idx int) {
	s.tick(now)
	if s.busyStart[idx] >= 0 {
		s.busyTime += now - s.busyStart[idx]
		s.busyStart[idx] = -1
	}
}

// ServerDownStart records that server idx became DOWN at now.
func (s *Stats) ServerDownStart(now float64, idx int) {
	s.tick(now)
	s.downStart[idx] = now
}

// ServerDownEnd folds the elapsed down interval for server idx into
// downTime and clears its running start time.
func (s *Stats) ServerDownEnd(now float64, idx int) {
	s.tick(now)
	if s.downStart[idx] >= 0 {
		s.downTime += now - s.downStart[idx]
		s.downStart[idx] = -1
	}
}

func (s *Stats) RecordArrival()   { s.arrivalsTotal++ }
func (s *Stats) RecordCompletion() { s.completedServices++ }
func (s *Stats) RecordReneged()   { s.renegedTotal++ }

// RecordWaitingTime records one customer's wait (spec §4.5 step 5).
func (s *Stats) RecordWaitingTime(w float64) {
	s.waitingTimeSum += w
	s.servedCustomerCount++
}

// RecordSystemTime records one customer's total system time,
// attributed to the node it exited from (spec §4.6).
func (s *Stats) RecordSystemTime(t float64) {
	s.systemTimeSum += t
	s.exitedCount++
}

// WarmupReset finalizes the integral up to warmup, then zeroes every
// integral and count, and splits any in-flight busy/down interval at
// the warmup boundary by resetting its start time to warmup instead
// of discarding it (spec §4.6).
func (s *Stats) WarmupReset(warmup float64) {
	s.tick(warmup)

	s.queueIntegral = 0
	s.busyTime = 0
	s.downTime = 0
	s.completedServices = 0
	s.arrivalsTotal = 0
	s.renegedTotal = 0
	s.waitingTimeSum = 0
	s.systemTimeSum = 0
	s.servedCustomerCount = 0
	s.exitedCount = 0
	s.lastUpdate = warmup

	for i := range s.busyStart {
		if s.busyStart[i] >= 0 {
			s.busyStart[i] = warmup
		}
	}
	for i := range s.downStart {
		if s.downStart[i] >= 0 {
			s.downStart[i] = warmup
		}
	}
}

// Finalize closes out the queue integral and any in-flight busy/down
// interval at t=simTime. Called exactly once, on terminate.
func (s *Stats) Finalize(simTime float64) {
	s.tick(simTime)
	for i := range s.busyStart {
		if s.busyStart[i] >= 0 {
			s.busyTime += simTime - s.busyStart[i]
			s.busyStart[i] = simTime
		}
	}
	for i := range s.downStart {
		if s.downStart[i] >= 0 {
			s.downTime += simTime - s.downStart[i]
			s.downStart[i] = simTime
		}
	}
}

// NodeMetrics holds the derived, per-replication metrics for one node
// (spec §4.6).
type NodeMetrics struct {
	MeanQueueLength    float64
	ServerUtilization  float64
	ServiceCompletions int
	ReneProbability    float64
	MeanWaitingTime    float64
	MeanSystemTime     float64
	CompletedServices  int
	ArrivalsTotal      int
	RenegedTotal       int
}

// Metrics computes the derived metrics over the post-warmup window of
// duration d, for a node with k servers. Pure: does not mutate s, so it
// may be called more than once after Finalize.
func (s *Stats) Metrics(d float64, k int) NodeMetrics {
	util := 0.0
	denom := float64(k)*d - s.downTime
	if denom > 0 {
		util = s.busyTime / denom
	}

	arrivalsDen := s.arrivalsTotal
	if arrivalsDen < 1 {
		arrivalsDen = 1
	}
	servedDen := s.servedCustomerCount
	if servedDen < 1 {
		servedDen = 1
	}
	exitedDen := s.exitedCount
	if exitedDen < 1 {
		exitedDen = 1
	}

	meanQueueLength := 0.0
	if d > 0 {
		meanQueueLength = s.queueIntegral / d
	}

	return NodeMetrics{
		MeanQueueLength:    meanQueueLength,
		ServerUtilization:  util,
		ServiceCompletions: s.completedServices,
		ReneProbability:    float64(s.renegedTotal) / float64(arrivalsDen),
		MeanWaitingTime:    s.waitingTimeSum / float64(servedDen),
		MeanSystemTime:     s.systemTimeSum / float64(exitedDen),
		CompletedServices:  s.completedServices,
		ArrivalsTotal:      s.arrivalsTotal,
		RenegedTotal:       s.renegedTotal,
	}
}

// CompletedServicesCount returns the raw completed-service count, the
// same value Metrics reports as CompletedServices.
func (s *Stats) CompletedServicesCount() int { return s.completedServices }

// QueueLength returns the current (not time-integrated) queue length,
// as last recorded by SetQueueLength.
func (s *Stats) QueueLength() int { return s.queueLen }
