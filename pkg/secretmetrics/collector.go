// Package secretmetrics exports pool activity of registered secrets to
// Prometheus. Only counts are exported; nothing about secret content is.
package secretmetrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/cryptkeeper/pkg/pool"
	"example.com/cryptkeeper/pkg/secret"
)

// Collector reads secret.Stats at scrape time. All metrics use the
// cryptkeeper_ namespace and carry the labels secret and pool.
type Collector struct {
	mu      sync.RWMutex
	secrets map[string]*secret.Secret

	size         *prometheus.Desc
	allocated    *prometheus.Desc
	inUse        *prometheus.Desc
	acquisitions *prometheus.Desc
	fallbacks    *prometheus.Desc
	disposed     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func New() *Collector {
	labels := []string{"secret", "pool"}
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("cryptkeeper", "pool", name), help, labels, nil)
	}
	return &Collector{
		secrets:      make(map[string]*secret.Secret),
		size:         desc("slots", "Configured slots per pool.", labels),
		allocated:    desc("slots_allocated", "Slots currently backed by locked memory.", labels),
		inUse:        desc("slots_in_use", "Pooled slots currently held by a use.", labels),
		acquisitions: desc("acquisitions_total", "Total slot acquisitions.", labels),
		fallbacks:    desc("fallbacks_total", "Acquisitions served by a transient slot because the pool was exhausted.", labels),
		disposed: prometheus.NewDesc(prometheus.BuildFQName("cryptkeeper", "secret", "disposed"),
			"1 if the secret has been disposed.", []string{"secret"}, nil),
	}
}

// Register adds s under name, replacing any secret already registered under
// it. The collector keeps s reachable until Unregister.
func (c *Collector) Register(name string, s *secret.Secret) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[name] = s
}

func (c *Collector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, name)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.allocated
	ch <- c.inUse
	ch <- c.acquisitions
	ch <- c.fallbacks
	ch <- c.disposed
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	names := make([]string, 0, len(c.secrets))
	for name := range c.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	secrets := make([]*secret.Secret, len(names))
	for i, name := range names {
		secrets[i] = c.secrets[name]
	}
	c.mu.RUnlock()

	for i, s := range secrets {
		st := s.Stats()
		c.collectPool(ch, names[i], "bytes", st.Bytes)
		c.collectPool(ch, names[i], "text", st.Text)
		disposed := 0.0
		if s.IsDisposed() {
			disposed = 1
		}
		ch <- prometheus.MustNewConstMetric(c.disposed, prometheus.GaugeValue, disposed, names[i])
	}
}

func (c *Collector) collectPool(ch chan<- prometheus.Metric, name, poolName string, st pool.Stats) {
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size), name, poolName)
	ch <- prometheus.MustNewConstMetric(c.allocated, prometheus.GaugeValue, float64(st.Allocated), name, poolName)
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(st.InUse), name, poolName)
	ch <- prometheus.MustNewConstMetric(c.acquisitions, prometheus.CounterValue, float64(st.Acquisitions), name, poolName)
	ch <- prometheus.MustNewConstMetric(c.fallbacks, prometheus.CounterValue, float64(st.Fallbacks), name, poolName)
}
