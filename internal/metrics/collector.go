package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/statebus/internal/event"
	"github.com/dshills/statebus/internal/event/dispatch"
)

const namespace = "statebus"

// PoolSource is the view of a worker pool the collector reads.
// *dispatch.Pool satisfies it.
type PoolSource interface {
	Stats() dispatch.PoolStats
}

// Collector implements prometheus.Collector over a set of buses and an
// optional pool.
type Collector struct {
	mu    sync.RWMutex
	buses map[string]event.Inspector
	pool  PoolSource

	publishes  *prometheus.Desc
	drains     *prometheus.Desc
	deliveries *prometheus.Desc
	suppressed *prometheus.Desc
	pruned     *prometheus.Desc
	failures   *prometheus.Desc
	topics     *prometheus.Desc
	pending    *prometheus.Desc

	poolTasks   *prometheus.Desc
	poolActive  *prometheus.Desc
	queueDepth  *prometheus.Desc
	poolWorkers *prometheus.Desc
	taskSeconds *prometheus.Desc
}

// NewCollector creates a collector. pool may be nil.
func NewCollector(pool PoolSource, buses ...event.Inspector) *Collector {
	busDesc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "bus", name), help,
			append([]string{"bus"}, labels...), nil,
		)
	}
	poolDesc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, labels, nil)
	}

	c := &Collector{
		buses: make(map[string]event.Inspector),
		pool:  pool,

		publishes:  busDesc("publishes_total", "Publish calls by delivery mode", "mode"),
		drains:     busDesc("drains_total", "Times a goroutine claimed a topic queue"),
		deliveries: busDesc("deliveries_total", "Subscriber invocations"),
		suppressed: busDesc("suppressed_total", "Notifications skipped because the subscriber was the sender"),
		pruned:     busDesc("pruned_total", "Dead subscriber registrations removed"),
		failures:   busDesc("handler_failures_total", "Subscriber failures by kind", "kind"),
		topics:     busDesc("topics", "Topics created so far"),
		pending:    busDesc("pending", "Queued updates across all topics"),

		poolTasks:   poolDesc("tasks_total", "Pool tasks by state", "state"),
		poolActive:  poolDesc("active", "Tasks currently running"),
		queueDepth:  poolDesc("queue_depth", "Tasks waiting for a worker"),
		poolWorkers: poolDesc("workers", "Worker goroutines"),
		taskSeconds: poolDesc("task_seconds_total", "Total time spent running tasks"),
	}
	for _, b := range buses {
		c.AddBus(b)
	}
	return c
}

// AddBus starts exporting b. A bus with the same name replaces the
// previous one.
func (c *Collector) AddBus(b event.Inspector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buses[b.Name()] = b
}

// RemoveBus stops exporting the named bus.
func (c *Collector) RemoveBus(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buses, name)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.publishes, c.drains, c.deliveries, c.suppressed, c.pruned,
		c.failures, c.topics, c.pending,
		c.poolTasks, c.poolActive, c.queueDepth, c.poolWorkers, c.taskSeconds,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	buses := make([]event.Inspector, 0, len(c.buses))
	for _, b := range c.buses {
		buses = append(buses, b)
	}
	pool := c.pool
	c.mu.RUnlock()

	for _, b := range buses {
		c.collectBus(ch, b.Stats())
	}
	if pool != nil {
		c.collectPool(ch, pool.Stats())
	}
}

func (c *Collector) collectBus(ch chan<- prometheus.Metric, s event.Stats) {
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), append([]string{s.Name}, labels...)...)
	}
	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), s.Name)
	}

	counter(c.publishes, s.SyncPublishes, event.DeliverySync.String())
	counter(c.publishes, s.AsyncPublishes, event.DeliveryAsync.String())
	counter(c.drains, s.Drains)
	counter(c.deliveries, s.Deliveries)
	counter(c.suppressed, s.Suppressed)
	counter(c.pruned, s.Pruned)
	counter(c.failures, s.HandlerErrors, "error")
	counter(c.failures, s.HandlerPanics, "panic")
	gauge(c.topics, s.Topics)
	gauge(c.pending, s.Pending)
}

func (c *Collector) collectPool(ch chan<- prometheus.Metric, s dispatch.PoolStats) {
	var ok uint64
	if s.Completed > s.Panicked {
		ok = s.Completed - s.Panicked
	}
	ch <- prometheus.MustNewConstMetric(c.poolTasks, prometheus.CounterValue, float64(s.Submitted), "submitted")
	ch <- prometheus.MustNewConstMetric(c.poolTasks, prometheus.CounterValue, float64(ok), "completed")
	ch <- prometheus.MustNewConstMetric(c.poolTasks, prometheus.CounterValue, float64(s.Panicked), "panicked")
	ch <- prometheus.MustNewConstMetric(c.poolActive, prometheus.GaugeValue, float64(s.Active))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.poolWorkers, prometheus.GaugeValue, float64(s.Workers))
	ch <- prometheus.MustNewConstMetric(c.taskSeconds, prometheus.CounterValue, s.TotalDuration.Seconds())
}

var _ prometheus.Collector = (*Collector)(nil)
