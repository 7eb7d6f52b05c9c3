package ids

import "sort"

// SortIDs sorts ids in place by ascending byte value, giving the
// deterministic order the spec requires wherever a set of IDs must be
// iterated identically on every peer.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
