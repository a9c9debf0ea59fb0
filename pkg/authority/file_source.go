package authority

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/propmon-agent/pkg/monitor"
)

// FileSource 从本地 YAML 文件读取配置快照，每次调用都重新读取
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return "file:" + f.path }

func (f *FileSource) Snapshot(_ context.Context) (monitor.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return decodeYAML(data)
}

func decodeYAML(data []byte) (monitor.Snapshot, error) {
	var snap monitor.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return monitor.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := validate(snap); err != nil {
		return monitor.Snapshot{}, err
	}
	return snap, nil
}

// validate 配置 id 不能为空且不能重复；同一配置内数据点路径不能重复
func validate(snap monitor.Snapshot) error {
	seen := make(map[string]bool, len(snap.Configs))
	for _, cfg := range snap.Configs {
		if cfg.ID == "" {
			return fmt.Errorf("snapshot contains a config without id")
		}
		if seen[cfg.ID] {
			return fmt.Errorf("snapshot contains duplicate config id %q", cfg.ID)
		}
		seen[cfg.ID] = true

		paths := map[string]bool{}
		for _, ds := range cfg.DataSources {
			if ds.CycleTime < 0 {
				return fmt.Errorf("config %s datasource %s: negative cycle_time %d", cfg.ID, ds.ID, ds.CycleTime)
			}
			for _, dp := range ds.DataPoints {
				if dp.Path == "" {
					return fmt.Errorf("config %s datasource %s: datapoint %s has no path", cfg.ID, ds.ID, dp.ID)
				}
				if paths[dp.Path] {
					return fmt.Errorf("config %s: duplicate datapoint path %q", cfg.ID, dp.Path)
				}
				paths[dp.Path] = true
			}
		}
	}
	return nil
}
