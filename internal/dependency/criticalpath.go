package dependency

// NodeInfo is the subset of task state critical-path needs, passed in by
// the caller (TaskCore) rather than queried directly so this package stays
// free of a taskcore import cycle.
type NodeInfo struct {
	ID             string
	EstimatedHours float64 // null treated as 0 by the caller
	Terminal       bool
	PriorityRank   int // lower sorts first (critical=0 ... low=3)
	Deadline       *int64
}

// CriticalPath returns the longest chain (by summed EstimatedHours) through
// the non-terminal subgraph, ties broken by priority then deadline then id.
func CriticalPath(edges []Edge, nodes map[string]NodeInfo) []string {
	// Only consider edges/nodes where both ends are non-terminal.
	adj := make(map[string][]string) // task -> depends_on (predecessors)
	rev := make(map[string][]string) // depends_on -> task (successors)
	for _, e := range edges {
		a, okA := nodes[e.TaskID]
		b, okB := nodes[e.DependsOn]
		if !okA || !okB || a.Terminal || b.Terminal {
			continue
		}
		adj[e.TaskID] = append(adj[e.TaskID], e.DependsOn)
		rev[e.DependsOn] = append(rev[e.DependsOn], e.TaskID)
	}

	memoLen := make(map[string]float64)
	memoNext := make(map[string]string)
	var visiting map[string]bool = make(map[string]bool)

	var longestFrom func(id string) float64
	longestFrom = func(id string) float64 {
		if v, ok := memoLen[id]; ok {
			return v
		}
		if visiting[id] {
			return 0 // guard against any residual cycle; cycles are prevented elsewhere
		}
		visiting[id] = true
		defer delete(visiting, id)

		best := 0.0
		bestNext := ""
		for _, dep := range adj[id] {
			candidate := nodes[dep].EstimatedHours + longestFrom(dep)
			if candidate > best || (candidate == best && bestNext != "" && less(nodes[dep], nodes[bestNext])) {
				best = candidate
				bestNext = dep
			}
		}
		memoLen[id] = best
		memoNext[id] = bestNext
		return best
	}

	var bestRoot string
	var bestTotal float64 = -1
	for id, n := range nodes {
		if n.Terminal {
			continue
		}
		total := n.EstimatedHours + longestFrom(id)
		if total > bestTotal || (total == bestTotal && less(n, nodes[bestRoot])) {
			bestTotal = total
			bestRoot = id
		}
	}

	if bestRoot == "" {
		return nil
	}

	path := []string{bestRoot}
	cur := bestRoot
	for {
		next, ok := memoNext[cur]
		if !ok || next == "" {
			break
		}
		path = append(path, next)
		cur = next
	}
	return path
}

// less implements the priority-then-deadline-then-id tie-break between two
// candidate nodes.
func less(a, b NodeInfo) bool {
	if a.PriorityRank != b.PriorityRank {
		return a.PriorityRank < b.PriorityRank
	}
	if (a.Deadline == nil) != (b.Deadline == nil) {
		return b.Deadline == nil
	}
	if a.Deadline != nil && b.Deadline != nil && *a.Deadline != *b.Deadline {
		return *a.Deadline < *b.Deadline
	}
	return a.ID < b.ID
}
