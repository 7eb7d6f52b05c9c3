package ids

// Set is an unordered collection of unique IDs. The zero value is an empty,
// usable set — matching the `ids.Set{}` usage this module's consensus
// packages rely on (e.g. conflict-token membership).
type Set map[ID]struct{}

// Add inserts the given IDs into the set.
func (s *Set) Add(ids ...ID) {
	if *s == nil {
		*s = make(Set, len(ids))
	}
	for _, id := range ids {
		(*s)[id] = struct{}{}
	}
}

// Contains reports whether id is a member of the set.
func (s Set) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// Remove deletes the given IDs from the set, if present.
func (s *Set) Remove(ids ...ID) {
	for _, id := range ids {
		delete(*s, id)
	}
}

// Len returns the number of elements in the set.
func (s Set) Len() int { return len(s) }

// Clear empties the set in place.
func (s *Set) Clear() {
	*s = nil
}

// List returns the set's elements in unspecified order. Callers that need a
// deterministic order must sort the result themselves (see ids.SortIDs).
func (s Set) List() []ID {
	list := make([]ID, 0, len(s))
	for id := range s {
		list = append(list, id)
	}
	return list
}

// Overlaps reports whether s and other share any element.
func (s Set) Overlaps(other Set) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for id := range small {
		if big.Contains(id) {
			return true
		}
	}
	return false
}

// Union adds every element of other into s.
func (s *Set) Union(other Set) {
	for id := range other {
		s.Add(id)
	}
}
