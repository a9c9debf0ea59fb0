package authority

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/propmon-agent/pkg/errors"
	"github.com/propmon-agent/pkg/monitor"
)

func TestClientSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/configs", r.URL.Path)
		_, _ = w.Write([]byte(`{"configs":[{"id":"dev1","datasources":[{"id":"a","entity":"/e","property":"p","cycle_time":300,
			"datapoints":[{"id":"p","path":"Devices/dev1/p","type":"GAUGE","min":null,"max":100}]}]}]}`))
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL+"/", time.Second).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Configs, 1)
	dp := snap.Configs[0].DataSources[0].DataPoints[0]
	assert.Equal(t, "Devices/dev1/p", dp.Path)
	assert.Nil(t, dp.Min)
	assert.Equal(t, 100.0, *dp.Max)
}

func TestClientFetchValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/fetch_values", r.URL.Path)

		var items []monitor.WorkItem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&items))
		for i := range items {
			if items[i].PropertyName == "known" {
				items[i].Value = monitor.FloatPtr(7)
			}
			items[i].Timestamp = time.Unix(1700000000, 0).UTC()
		}
		_ = json.NewEncoder(w).Encode(items)
	}))
	defer srv.Close()

	chunk := []monitor.WorkItem{
		monitor.NewWorkItem("/e", "known", monitor.WriteSpec{Path: "a"}),
		monitor.NewWorkItem("/e", "unknown", monitor.WriteSpec{Path: "b"}),
	}
	out, err := NewClient(srv.URL, time.Second).FetchValues(context.Background(), chunk)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 7.0, *out[0].Value)
	assert.Nil(t, out[1].Value)
	assert.True(t, out[1].Fetched())
	assert.Equal(t, "b", out[1].Key())
}

func TestClientFetchValuesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).FetchValues(context.Background(), []monitor.WorkItem{{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrTransport))
	assert.Contains(t, err.Error(), "500")
}

func TestClientFetchValuesTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond).FetchValues(context.Background(), []monitor.WorkItem{{}})
	assert.True(t, errors.Is(err, perrors.ErrTransport))
}
