package monitor

import "sync"

// PendingSet 某一周期内等待采集的去重集合
type PendingSet struct {
	mu    sync.Mutex
	items map[string]WorkItem
	order []string
}

func NewPendingSet() *PendingSet {
	return &PendingSet{items: make(map[string]WorkItem)}
}

// Add 插入，同身份的旧值被替换
func (s *PendingSet) Add(item WorkItem) {
	key := item.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, key)
	}
	s.items[key] = item
}

// DrainAll 原子地换出全部内容并返回
// 在换出之后到达的 Add 进入新的集合，留给下一周期
func (s *PendingSet) DrainAll() []WorkItem {
	s.mu.Lock()
	items, order := s.items, s.order
	s.items = make(map[string]WorkItem, len(items))
	s.order = nil
	s.mu.Unlock()

	out := make([]WorkItem, 0, len(order))
	for _, key := range order {
		out = append(out, items[key])
	}
	return out
}

// Size 仅用于观测
func (s *PendingSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
