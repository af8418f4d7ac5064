package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-execution-manager/core"
)

// ContextSnapshotProvider provides current execution context stats snapshots.
type ContextSnapshotProvider interface {
	Stats() core.ContextStats
}

// SnapshotPoller periodically exports execution context Stats() snapshots
// into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	contextsMu sync.RWMutex
	contexts   map[string]ContextSnapshotProvider

	contextWorkers  *prom.GaugeVec
	contextActive   *prom.GaugeVec
	contextRunning  *prom.GaugeVec
	contextExecuted *prom.GaugeVec

	queueDepth    *prom.GaugeVec
	queueCapacity *prom.GaugeVec

	strandPending *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	namespace = normalizeLabel(namespace, DefaultNamespace)
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	contextWorkers := gauge("context_workers", "Worker threads per execution context.", "context", "type")
	contextActive := gauge("context_active", "Tasks currently executing per execution context.", "context", "type")
	contextRunning := gauge("context_running", "Execution context running state (1=running, 0=stopped).", "context", "type")
	contextExecuted := gauge("context_executed_total", "Execution context executed task count snapshot.", "context", "type")
	queueDepth := gauge("queue_depth", "Approximate number of queued tasks.", "context", "queue", "policy")
	queueCapacity := gauge("queue_capacity", "Task queue capacity.", "context", "queue", "policy")
	strandPending := gauge("strand_pending", "Tasks accepted by a strand and not yet finished.", "context", "strand")

	var err error
	for _, g := range []**prom.GaugeVec{
		&contextWorkers, &contextActive, &contextRunning, &contextExecuted,
		&queueDepth, &queueCapacity, &strandPending,
	} {
		if *g, err = registerCollector(reg, *g); err != nil {
			return nil, err
		}
	}

	return &SnapshotPoller{
		interval:        interval,
		contexts:        make(map[string]ContextSnapshotProvider),
		contextWorkers:  contextWorkers,
		contextActive:   contextActive,
		contextRunning:  contextRunning,
		contextExecuted: contextExecuted,
		queueDepth:      queueDepth,
		queueCapacity:   queueCapacity,
		strandPending:   strandPending,
	}, nil
}

// AddContext adds or replaces a context snapshot provider by name.
func (p *SnapshotPoller) AddContext(name string, provider ContextSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "context")
	p.contextsMu.Lock()
	p.contexts[name] = provider
	p.contextsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

// CollectOnce takes one snapshot of every provider.
func (p *SnapshotPoller) CollectOnce() {
	p.contextsMu.RLock()
	defer p.contextsMu.RUnlock()

	for name, provider := range p.contexts {
		stats := provider.Stats()
		typeLabel := normalizeLabel(stats.Type, "unknown")
		p.contextWorkers.WithLabelValues(name, typeLabel).Set(float64(stats.Workers))
		p.contextActive.WithLabelValues(name, typeLabel).Set(float64(stats.Active))
		p.contextExecuted.WithLabelValues(name, typeLabel).Set(float64(stats.Executed))
		p.contextRunning.WithLabelValues(name, typeLabel).Set(boolGauge(stats.Running))

		p.setQueues(name, stats.Queues)
		for _, s := range stats.Strands {
			p.strandPending.WithLabelValues(name, s.Name).Set(float64(s.Pending))
			p.setQueues(name, s.Queues)
		}
	}
}

func (p *SnapshotPoller) setQueues(contextName string, queues []core.QueueStats) {
	for _, q := range queues {
		p.queueDepth.WithLabelValues(contextName, q.Name, q.Policy).Set(float64(q.Depth))
		p.queueCapacity.WithLabelValues(contextName, q.Name, q.Policy).Set(float64(q.Capacity))
	}
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
