package policy

// slots maps a policy type to its value within one faction or pair.
type slots map[TypeID]Value

// store holds the three policy mappings. The directory keeps one live
// store and builds a scratch one while a faction is being created.
type store struct {
	internal map[string]slots
	oneWay   map[OrderedKey]slots
	twoWay   map[UnorderedKey]slots
}

func newStore() *store {
	return &store{
		internal: make(map[string]slots),
		oneWay:   make(map[OrderedKey]slots),
		twoWay:   make(map[UnorderedKey]slots),
	}
}

func (s *store) get(sl Slot) (Value, bool) {
	var m slots
	switch sl.Kind {
	case Internal:
		m = s.internal[sl.First]
	case OneWay:
		m = s.oneWay[Ordered(sl.First, sl.Second)]
	case TwoWay:
		m = s.twoWay[Unordered(sl.First, sl.Second)]
	}
	v, ok := m[sl.Type]
	return v, ok
}

// put stores v and reports whether it was written. Without overwrite an
// existing value is left alone.
func (s *store) put(sl Slot, v Value, overwrite bool) bool {
	switch sl.Kind {
	case Internal:
		return putSlot(s.internal, sl.First, sl.Type, v, overwrite)
	case OneWay:
		return putSlot(s.oneWay, Ordered(sl.First, sl.Second), sl.Type, v, overwrite)
	case TwoWay:
		return putSlot(s.twoWay, Unordered(sl.First, sl.Second), sl.Type, v, overwrite)
	}
	return false
}

func putSlot[K comparable](m map[K]slots, k K, t TypeID, v Value, overwrite bool) bool {
	sl, ok := m[k]
	if !ok {
		sl = make(slots)
		m[k] = sl
	}
	if _, exists := sl[t]; exists && !overwrite {
		return false
	}
	sl[t] = v
	return true
}

// merge copies every slot of o that s does not have yet.
func (s *store) merge(o *store) {
	for f, m := range o.internal {
		for t, v := range m {
			putSlot(s.internal, f, t, v, false)
		}
	}
	for k, m := range o.oneWay {
		for t, v := range m {
			putSlot(s.oneWay, k, t, v, false)
		}
	}
	for k, m := range o.twoWay {
		for t, v := range m {
			putSlot(s.twoWay, k, t, v, false)
		}
	}
}

// each calls fn for every stored slot, in map order.
func (s *store) each(fn func(Slot, Value)) {
	for f, m := range s.internal {
		for t, v := range m {
			fn(Slot{Type: t, Kind: Internal, First: f}, v)
		}
	}
	for k, m := range s.oneWay {
		for t, v := range m {
			fn(Slot{Type: t, Kind: OneWay, First: k.First, Second: k.Second}, v)
		}
	}
	for k, m := range s.twoWay {
		for t, v := range m {
			fn(Slot{Type: t, Kind: TwoWay, First: k.First, Second: k.Second}, v)
		}
	}
}

// count returns the number of values per kind.
func (s *store) count() (internal, oneWay, twoWay int) {
	for _, m := range s.internal {
		internal += len(m)
	}
	for _, m := range s.oneWay {
		oneWay += len(m)
	}
	for _, m := range s.twoWay {
		twoWay += len(m)
	}
	return internal, oneWay, twoWay
}
