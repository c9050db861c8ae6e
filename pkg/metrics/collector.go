package metrics

import (
	"time"
)

// subscriptionCounter is satisfied by every refstore.Store adapter;
// declared locally to avoid metrics depending on refstore's full
// interface surface.
type subscriptionCounter interface {
	SubscriptionCount() int
}

// leaderReporter is satisfied by refstore.RaftStore.
type leaderReporter interface {
	IsLeader() bool
	Peers() int
}

// Collector periodically samples gauge-shaped state off a RefStore
// backend that can't be updated inline at the call site (active
// subscription count, Raft leadership and peer count) and writes it
// into the package's Prometheus gauges.
type Collector struct {
	backend interface{}
	stopCh  chan struct{}
}

// NewCollector wraps a RefStore backend for periodic metrics sampling.
// backend is typically a *refstore.Memory, *refstore.BoltStore,
// *refstore.FileStore, *refstore.PostgresStore, or *refstore.RaftStore.
func NewCollector(backend interface{}) *Collector {
	return &Collector{backend: backend, stopCh: make(chan struct{})}
}

// Start begins collecting metrics every interval until Stop is called.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if sc, ok := c.backend.(subscriptionCounter); ok {
		RefSubscriptionsActive.Set(float64(sc.SubscriptionCount()))
	}
	if lr, ok := c.backend.(leaderReporter); ok {
		if lr.IsLeader() {
			RaftIsLeader.Set(1)
		} else {
			RaftIsLeader.Set(0)
		}
		RaftPeersTotal.Set(float64(lr.Peers()))
	}
}
