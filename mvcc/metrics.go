package mvcc

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts engine operations. It implements prometheus.Collector;
// registration is left to the embedding process.
type Metrics struct {
	Begins      prometheus.Counter
	Commits     prometheus.Counter
	Rollbacks   prometheus.Counter
	Reads       prometheus.Counter
	Writes      prometheus.Counter
	WALFailures prometheus.Counter
}

// NewMetrics creates an unregistered metrics set.
func NewMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corvus",
			Subsystem: "mvcc",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		Begins:      counter("transactions_begun_total", "Transactions started."),
		Commits:     counter("transactions_committed_total", "Transactions committed."),
		Rollbacks:   counter("transactions_rolled_back_total", "Transactions rolled back."),
		Reads:       counter("reads_total", "Key reads served."),
		Writes:      counter("writes_total", "Writes buffered."),
		WALFailures: counter("wal_failures_total", "Commits aborted by a failed durability write."),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Begins, m.Commits, m.Rollbacks, m.Reads, m.Writes, m.WALFailures,
	}
}
