package sink

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	perrors "github.com/propmon-agent/pkg/errors"
)

// MetricDataMarker 带元数据路径的前缀里必须出现的标记
const MetricDataMarker = "METRIC_DATA"

// ParseMetadataPath 拆分 "<json 元数据>/<指标名>"，以最后一个 '/' 为界
func ParseMetadataPath(path string) (map[string]any, string, error) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return nil, "", perrors.Newf(perrors.ErrCodeMalformedPath, "path %q has no metadata separator", path)
	}
	prefix, metric := path[:idx], path[idx+1:]

	if !strings.Contains(prefix, MetricDataMarker) {
		return nil, "", perrors.Newf(perrors.ErrCodeMalformedPath, "path %q does not contain %s", path, MetricDataMarker)
	}
	if metric == "" {
		return nil, "", perrors.Newf(perrors.ErrCodeMalformedPath, "path %q has an empty metric name", path)
	}

	metadata := make(map[string]any)
	if err := json.Unmarshal([]byte(prefix), &metadata); err != nil {
		return nil, "", perrors.WrapError(perrors.ErrCodeMalformedPath, fmt.Sprintf("decode metadata of %q", path), err)
	}
	return metadata, metric, nil
}
