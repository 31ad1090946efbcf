package shm

import (
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/hftshm/pkg/layout"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	p := NewLinuxPolicy(
		WithBaseDir(filepath.Join(t.TempDir(), "hft")),
		WithLogOutput(io.Discard),
		WithMetrics(m),
	)

	fd, err := p.Create("seg", 4096, 0)
	require.NoError(t, err)
	require.NoError(t, p.Close(fd))
	fd, err = p.Create("seg", 8192, 0)
	require.NoError(t, err)
	defer p.Close(fd)

	assert.Equal(t, 1.0, counterValue(t, m.segments.WithLabelValues("created")))
	assert.Equal(t, 1.0, counterValue(t, m.segments.WithLabelValues("adopted")))

	regular, err := p.Map(fd, 4096, 0)
	require.NoError(t, err)
	huge, err := p.Map(fd, 8192, layout.HugePage2MB)
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, m.fallbacks))
	assert.Equal(t, 4096.0+8192.0, gaugeValue(t, m.mappedBytes))

	require.NoError(t, p.Unmap(huge.Data))
	require.NoError(t, p.Unmap(regular.Data))
	assert.Zero(t, gaugeValue(t, m.mappedBytes))

	_, err = p.Map(fd, math.MaxInt&^0xfff, 0)
	assert.Error(t, err)
	assert.Equal(t, 1.0, counterValue(t, m.mapFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "hftshm_segments_created_total")
	assert.Contains(t, names, "hftshm_hugepage_fallbacks_total")

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.segmentCreated(true)
		m.mapped(Mapping{Data: make([]byte, 1), Requested: layout.HugePage2MB})
		m.mapFailed()
		m.unmapped(1)
	})

	m, err := NewMetrics(nil)
	require.NoError(t, err)
	m.mapFailed()
	assert.Equal(t, 1.0, counterValue(t, m.mapFailures))
}
