package secretmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/cryptkeeper/pkg/secret"
)

// gauge returns the value of the sample of family name with the given labels.
func gauge(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestCollector(t *testing.T) {
	s, err := secret.FromBytes([]byte("token"), secret.WithPoolSize(1))
	require.NoError(t, err)

	c := New()
	c.Register("api-token", s)
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	require.NoError(t, s.UseBytes(func([]byte) error {
		return s.UseBytes(func([]byte) error { return nil })
	}))

	bytesPool := map[string]string{"secret": "api-token", "pool": "bytes"}
	assert.Equal(t, 1.0, gauge(t, reg, "cryptkeeper_pool_slots", bytesPool))
	assert.Equal(t, 1.0, gauge(t, reg, "cryptkeeper_pool_slots_allocated", bytesPool))
	assert.Equal(t, 0.0, gauge(t, reg, "cryptkeeper_pool_slots_in_use", bytesPool))
	assert.Equal(t, 2.0, gauge(t, reg, "cryptkeeper_pool_acquisitions_total", bytesPool))
	assert.Equal(t, 1.0, gauge(t, reg, "cryptkeeper_pool_fallbacks_total", bytesPool))
	assert.Equal(t, 0.0, gauge(t, reg, "cryptkeeper_pool_acquisitions_total",
		map[string]string{"secret": "api-token", "pool": "text"}))

	assert.Equal(t, 0.0, gauge(t, reg, "cryptkeeper_secret_disposed", map[string]string{"secret": "api-token"}))
	s.Dispose()
	assert.Equal(t, 1.0, gauge(t, reg, "cryptkeeper_secret_disposed", map[string]string{"secret": "api-token"}))
	assert.Equal(t, 0.0, gauge(t, reg, "cryptkeeper_pool_slots_allocated", bytesPool))
}

func TestUnregister(t *testing.T) {
	s, err := secret.FromText([]byte("x"))
	require.NoError(t, err)
	defer s.Dispose()

	c := New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	c.Register("a", s)
	c.Unregister("a")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
