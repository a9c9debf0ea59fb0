package sink

import (
	"context"
	"fmt"
	"time"

	perrors "github.com/propmon-agent/pkg/errors"
	"github.com/propmon-agent/pkg/monitor"
)

// Mode 写入方式，在构造 Dispatcher 时确定一次
type Mode int

const (
	ModeLegacy Mode = iota
	ModeMetadata
)

func (m Mode) String() string {
	if m == ModeMetadata {
		return "metadata"
	}
	return "legacy"
}

// AbsentPolicy 远端未能给出数值时的处理方式
type AbsentPolicy string

const (
	AbsentSkip AbsentPolicy = "skip"
	AbsentNull AbsentPolicy = "null"
)

// Dispatcher 把 WorkItem 写到 sink
type Dispatcher struct {
	writer Writer
	meta   MetadataWriter
	mode   Mode
	tags   bool
	absent AbsentPolicy
}

// NewDispatcher 按 sink 能力决定写入方式
func NewDispatcher(w Writer, absent AbsentPolicy) (*Dispatcher, error) {
	if w == nil {
		return nil, perrors.NewError(perrors.ErrCodeConfigInvalid, "sink is nil")
	}
	switch absent {
	case "":
		absent = AbsentSkip
	case AbsentSkip, AbsentNull:
	default:
		return nil, perrors.Newf(perrors.ErrCodeConfigInvalid, "unknown absent value policy %q", absent)
	}

	d := &Dispatcher{writer: w, mode: ModeLegacy, absent: absent}
	if mw, ok := w.(MetadataWriter); ok {
		d.meta = mw
		d.mode = ModeMetadata
	}
	if tw, ok := w.(TagWriter); ok {
		d.tags = tw.SupportsTags()
	}
	return d, nil
}

func (d *Dispatcher) Mode() Mode { return d.mode }
func (d *Dispatcher) SinkName() string { return d.writer.Name() }
func (d *Dispatcher) ForwardsTags() bool { return d.tags }

// Write 写入单个样本；按缺值策略跳过时返回 false, nil
func (d *Dispatcher) Write(ctx context.Context, item monitor.WorkItem, cycleTime time.Duration) (bool, error) {
	if item.Value == nil && d.absent == AbsentSkip {
		return false, nil
	}

	var tags map[string]string
	if d.tags && len(item.Write.Tags) > 0 {
		tags = item.Write.Tags
	}

	var err error
	switch d.mode {
	case ModeMetadata:
		metadata, metric, perr := ParseMetadataPath(item.Write.Path)
		if perr != nil {
			return false, perr
		}
		err = d.meta.WriteWithMetadata(ctx, metric, item.Value, item.Write.Type, MetadataOptions{
			CycleTime: cycleTime,
			Timestamp: item.Timestamp,
			Min:       item.Write.Min,
			Max:       item.Write.Max,
			Metadata:  metadata,
			Tags:      tags,
		})
	default:
		err = d.writer.Write(ctx, item.Write.Path, item.Value, item.Write.Type, WriteOptions{
			CreateCommand: item.Write.CreateCommand,
			CycleTime:     cycleTime,
			Min:           item.Write.Min,
			Max:           item.Write.Max,
			Timestamp:     item.Timestamp,
			Tags:          tags,
		})
	}
	if err != nil {
		return false, perrors.WrapError(perrors.ErrCodeSinkWrite,
			fmt.Sprintf("%s write path=%s value=%s", d.writer.Name(), item.Write.Path, formatValue(item.Value)), err)
	}
	return true, nil
}

func formatValue(v *float64) string {
	if v == nil {
		return "<absent>"
	}
	return fmt.Sprintf("%g", *v)
}
