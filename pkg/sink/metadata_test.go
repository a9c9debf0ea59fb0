package sink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/propmon-agent/pkg/errors"
)

func TestParseMetadataPath(t *testing.T) {
	path := `{"type": "METRIC_DATA", "contextUUID": "c-1", "deviceId": "dev/1"}/usedBytes`

	metadata, metric, err := ParseMetadataPath(path)
	require.NoError(t, err)
	assert.Equal(t, "usedBytes", metric)
	assert.Equal(t, "METRIC_DATA", metadata["type"])
	assert.Equal(t, "dev/1", metadata["deviceId"])
}

func TestParseMetadataPathMalformed(t *testing.T) {
	for name, path := range map[string]string{
		"no separator":   "usedBytes",
		"no marker":      `{"type": "OTHER"}/usedBytes`,
		"plain rrd path": "Devices/dev1/os/usedBytes",
		"empty metric":   `{"type": "METRIC_DATA"}/`,
		"bad json":       `{"type": METRIC_DATA}/usedBytes`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseMetadataPath(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, perrors.ErrMalformedPath))
		})
	}
}
