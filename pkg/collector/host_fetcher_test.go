package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	perrors "github.com/propmon-agent/pkg/errors"
	"github.com/propmon-agent/pkg/monitor"
)

func item(property, path string) monitor.WorkItem {
	return monitor.NewWorkItem("/host", property, monitor.WriteSpec{Path: path, Type: "GAUGE"})
}

func TestHostFetcherResolvesKnownProperties(t *testing.T) {
	h := NewHostFetcher(zaptest.NewLogger(t))
	fixed := time.Unix(1700000000, 0)
	h.now = func() time.Time { return fixed }

	calls := 0
	h.probes = map[string]probe{
		PropLoad1:          func(context.Context) (float64, error) { calls++; return 1.5, nil },
		PropMemUsedPercent: func(context.Context) (float64, error) { return 0, errors.New("no meminfo") },
	}

	in := []monitor.WorkItem{
		item(PropLoad1, "host/load1"),
		item("fan_speed", "host/fan"),
		item(PropMemUsedPercent, "host/mem"),
		item(PropLoad1, "host/load1-copy"),
	}
	out, err := h.FetchValues(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	for i := range in {
		assert.Equal(t, in[i].Key(), out[i].Key())
		assert.Equal(t, fixed, out[i].Timestamp)
	}
	require.NotNil(t, out[0].Value)
	assert.Equal(t, 1.5, *out[0].Value)
	assert.Nil(t, out[1].Value)
	assert.Nil(t, out[2].Value)
	assert.Equal(t, 1.5, *out[3].Value)
	assert.Equal(t, 1, calls)
}

func TestHostFetcherCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHostFetcher(nil).FetchValues(ctx, []monitor.WorkItem{item(PropCPUCount, "host/cpus")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrTransport))
}

func TestHostFetcherCPUCount(t *testing.T) {
	out, err := NewHostFetcher(nil).FetchValues(context.Background(), []monitor.WorkItem{item(PropCPUCount, "host/cpus")})
	require.NoError(t, err)
	if out[0].Value != nil {
		assert.GreaterOrEqual(t, *out[0].Value, 1.0)
	}
}
