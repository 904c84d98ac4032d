package models

// idSet: множество id в порядке вставки
type idSet struct {
	items []ID
	pos   map[ID]int
}

func newIDSet() *idSet { return &idSet{pos: map[ID]int{}} }

func (s *idSet) has(id ID) bool {
	_, ok := s.pos[id]
	return ok
}

func (s *idSet) add(id ID) bool {
	if s.has(id) {
		return false
	}
	s.pos[id] = len(s.items)
	s.items = append(s.items, id)
	return true
}

func (s *idSet) remove(id ID) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}
	copy(s.items[i:], s.items[i+1:])
	s.items = s.items[:len(s.items)-1]
	delete(s.pos, id)
	for j := i; j < len(s.items); j++ {
		s.pos[s.items[j]] = j
	}
	return true
}

func (s *idSet) len() int { return len(s.items) }

func (s *idSet) list() []ID { return append([]ID(nil), s.items...) }

// reorder заменяет порядок; набор элементов должен совпадать
func (s *idSet) reorder(ids []ID) {
	s.items = ids
	for i, id := range ids {
		s.pos[id] = i
	}
}

// recordList: упорядоченный набор записей (группы индексов, порядок модели)
type recordList struct {
	items []*Record
	pos   map[*Record]int
}

func newRecordList() *recordList { return &recordList{pos: map[*Record]int{}} }

func (l *recordList) add(r *Record) {
	if _, ok := l.pos[r]; ok {
		return
	}
	l.pos[r] = len(l.items)
	l.items = append(l.items, r)
}

func (l *recordList) remove(r *Record) {
	i, ok := l.pos[r]
	if !ok {
		return
	}
	copy(l.items[i:], l.items[i+1:])
	l.items = l.items[:len(l.items)-1]
	delete(l.pos, r)
	for j := i; j < len(l.items); j++ {
		l.pos[l.items[j]] = j
	}
}

func (l *recordList) indexOf(r *Record) int {
	if i, ok := l.pos[r]; ok {
		return i
	}
	return -1
}

func (l *recordList) len() int { return len(l.items) }

func (l *recordList) list() []*Record { return append([]*Record(nil), l.items...) }
