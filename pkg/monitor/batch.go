package monitor

import (
	perrors "github.com/propmon-agent/pkg/errors"
)

// DefaultChunkSize 单次远端取值的默认上限
const DefaultChunkSize = 256

// Chunk 按顺序切分为至多 size 个元素的连续分组，最后一组可以更小
func Chunk[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, perrors.Newf(perrors.ErrCodeConfigInvalid, "chunk size must be positive, got %d", size)
	}
	if len(items) == 0 {
		return nil, nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks, nil
}
