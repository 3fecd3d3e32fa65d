package hierarchy

import "github.com/schemabounce/waterfall-bridge/types"

// DetectCycle walks parent pointers from every identity and returns the first
// cycle found, or nil. The returned path starts at the first node of the
// cycle and ends with that node repeated, so a self-referencing record yields
// a path of length two. Every node is walked at most once across all starting
// points, which bounds the work on degenerate graphs.
func DetectCycle(records types.Collection, parentField string) []string {
	if parentField == "" {
		parentField = types.FieldParentID
	}

	var starts []string
	parentOf := make(map[string]string, len(records))
	for _, record := range records {
		id := record.Identity()
		parentID := record.Ref(parentField)
		if id == "" || parentID == "" {
			continue
		}
		if _, seen := parentOf[id]; !seen {
			starts = append(starts, id)
		}
		parentOf[id] = parentID
	}

	visited := make(map[string]bool, len(parentOf))
	for _, start := range starts {
		if visited[start] {
			continue
		}

		var path []string
		onPath := make(map[string]int)
		current := start
		for current != "" && !visited[current] {
			if idx, ok := onPath[current]; ok {
				cycle := make([]string, 0, len(path)-idx+1)
				cycle = append(cycle, path[idx:]...)
				return append(cycle, current)
			}
			onPath[current] = len(path)
			path = append(path, current)
			current = parentOf[current]
		}

		for _, id := range path {
			visited[id] = true
		}
	}

	return nil
}
