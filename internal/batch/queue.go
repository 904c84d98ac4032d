package batch

// Set: упорядоченное множество без дублей; Take отдаёт снимок и очищает очередь
type Set[T comparable] struct {
	items []T
	index map[T]struct{}
}

// Add добавляет элемент; повторное добавление до Take ничего не меняет
func (s *Set[T]) Add(v T) bool {
	if s.index == nil {
		s.index = make(map[T]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *Set[T]) Len() int { return len(s.items) }

// Take забирает элементы в порядке добавления
func (s *Set[T]) Take() []T {
	if len(s.items) == 0 {
		return nil
	}
	out := s.items
	s.items = nil
	s.index = nil
	return out
}

// List: очередь с дублями (колбэки, которые сравнивать нельзя)
type List[T any] struct {
	items []T
}

func (l *List[T]) Push(v T) { l.items = append(l.items, v) }

func (l *List[T]) Len() int { return len(l.items) }

func (l *List[T]) Take() []T {
	if len(l.items) == 0 {
		return nil
	}
	out := l.items
	l.items = nil
	return out
}

// SetPhase делает из Set фазу: each вызывается для каждого элемента снимка
func SetPhase[T comparable](s *Set[T], each func(T)) Phase {
	return PhaseFunc(func() func() {
		items := s.Take()
		if items == nil {
			return nil
		}
		return func() {
			for _, it := range items {
				each(it)
			}
		}
	})
}

// ListPhase: то же для List
func ListPhase[T any](l *List[T], each func(T)) Phase {
	return PhaseFunc(func() func() {
		items := l.Take()
		if items == nil {
			return nil
		}
		return func() {
			for _, it := range items {
				each(it)
			}
		}
	})
}
