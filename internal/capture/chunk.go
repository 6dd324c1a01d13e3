package capture

// Chunk splits tags into consecutive groups of at most size elements. The
// groups share the backing array of tags.
func Chunk(tags []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	groups := make([][]string, 0, (len(tags)+size-1)/size)
	for start := 0; start < len(tags); start += size {
		end := min(start+size, len(tags))
		groups = append(groups, tags[start:end:end])
	}
	return groups
}
