package core

// QueueStats represents the state of one task queue at snapshot time.
type QueueStats struct {
	Name     string
	Policy   string
	Depth    int
	Capacity int
	Closed   bool
}

// StrandStats represents the state of one strand at snapshot time.
type StrandStats struct {
	Name     string
	Pending  int64
	Executed uint64
	Rejected uint64
	Stopped  bool
	Queues   []QueueStats
}

// ContextStats represents runtime observability state for an execution context.
type ContextStats struct {
	Name     string
	Type     string
	Workers  int
	Running  bool
	Active   int
	Executed uint64
	Panicked uint64
	Queues   []QueueStats
	Strands  []StrandStats
}

// StatsOf snapshots the queue q.
func StatsOf(q TaskQueue) QueueStats {
	return QueueStats{
		Name:     q.Name(),
		Policy:   q.Policy().String(),
		Depth:    q.Len(),
		Capacity: q.Capacity(),
		Closed:   q.IsClosed(),
	}
}

// TotalDepth returns the number of tasks queued across all queues.
func (s ContextStats) TotalDepth() int {
	n := 0
	for _, q := range s.Queues {
		n += q.Depth
	}
	return n
}
