package refdata

// Set is an immutable snapshot of one reference table. Values keep
// their sheet order so tiered scans stay deterministic.
type Set struct {
	values []string
	index  map[string]struct{}
}

func NewSet(values []string) *Set {
	s := &Set{index: make(map[string]struct{}, len(values))}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := s.index[v]; ok {
			continue
		}
		s.index[v] = struct{}{}
		s.values = append(s.values, v)
	}
	return s
}

func (s *Set) Contains(v string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[v]
	return ok
}

func (s *Set) Values() []string {
	if s == nil {
		return nil
	}
	return s.values
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}
