package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/propmon-agent/pkg/config"
	"github.com/propmon-agent/pkg/metrics"
	"github.com/propmon-agent/pkg/sink"
)

const hostSnapshot = `
configs:
  - id: localhost
    datasources:
      - id: cpus
        entity: /host
        property: cpu_count
        cycle_time: 1
        datapoints:
          - id: cpus
            path: '{"METRIC_DATA":"host","device":"localhost"}/cpu_count'
            type: GAUGE
      - id: fans
        entity: /host
        property: fan_speed
        cycle_time: 1
        datapoints:
          - id: fans
            path: '{"METRIC_DATA":"host","device":"localhost"}/fan_speed'
            type: GAUGE
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "datasources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(hostSnapshot), 0o644))

	cfg := config.NewDefaultConfig()
	cfg.Log.Path = dir
	cfg.Authority.Path = path
	cfg.Sink.AbsentValue = "null"
	return cfg
}

func TestAgentRunsHostPipeline(t *testing.T) {
	reg := metrics.InitPromRegistry(false)
	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t), reg)
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Shutdown(ctx))
	})

	gauge, ok := a.writer.(*sink.GaugeSink)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return gauge.Len() == 2 }, 5*time.Second, 50*time.Millisecond)

	st := a.Status()
	assert.Equal(t, "prometheus", st.Sink)
	assert.Equal(t, "metadata", st.SinkMode)
	assert.Equal(t, "host-fetcher", st.Fetcher)
	require.Len(t, st.Tasks, 1)
	assert.Equal(t, "localhost", st.Tasks[0].ConfigID)
	assert.EqualValues(t, 1, st.Tasks[0].CycleSec)
	assert.Equal(t, 2, st.Tasks[0].DataSources)
	require.Len(t, st.Workers, 1)
	assert.Equal(t, time.Second, st.Workers[0].Period)
	assert.True(t, st.Workers[0].Running)

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["propmon_property_cpu_count"])
	assert.True(t, names["propmon_property_fan_speed"])
	assert.True(t, names["propmon_pending_items"])
}

func TestAgentRejectsRemoteFetcherWithoutURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetcher.Type = "remote"
	_, err := New(context.Background(), cfg, nil, metrics.InitPromRegistry(false))
	assert.Error(t, err)
}

func TestAgentRejectsUnknownAbsentPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sink.AbsentValue = "zero"
	_, err := New(context.Background(), cfg, nil, metrics.InitPromRegistry(false))
	assert.Error(t, err)
}
