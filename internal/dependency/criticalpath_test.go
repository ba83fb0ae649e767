package dependency

import (
	"reflect"
	"testing"
)

func TestCriticalPathPicksLongestChain(t *testing.T) {
	// a(1h) <- b(2h) <- c(5h); a(1h) <- d(1h). Longest chain is c -> b -> a.
	edges := []Edge{
		{TaskID: "b", DependsOn: "a"},
		{TaskID: "c", DependsOn: "b"},
		{TaskID: "d", DependsOn: "a"},
	}
	nodes := map[string]NodeInfo{
		"a": {ID: "a", EstimatedHours: 1},
		"b": {ID: "b", EstimatedHours: 2},
		"c": {ID: "c", EstimatedHours: 5},
		"d": {ID: "d", EstimatedHours: 1},
	}

	path := CriticalPath(edges, nodes)
	want := []string{"c", "b", "a"}
	if !reflect.DeepEqual(path, want) {
		t.Errorf("got %v, want %v", path, want)
	}
}

func TestCriticalPathExcludesTerminalNodes(t *testing.T) {
	edges := []Edge{
		{TaskID: "b", DependsOn: "a"},
	}
	nodes := map[string]NodeInfo{
		"a": {ID: "a", EstimatedHours: 10, Terminal: true},
		"b": {ID: "b", EstimatedHours: 3},
	}

	path := CriticalPath(edges, nodes)
	want := []string{"b"}
	if !reflect.DeepEqual(path, want) {
		t.Errorf("got %v, want %v (terminal predecessor should not extend the path)", path, want)
	}
}

func TestCriticalPathEmptyGraph(t *testing.T) {
	if path := CriticalPath(nil, map[string]NodeInfo{}); path != nil {
		t.Errorf("expected nil path for empty graph, got %v", path)
	}
}

func TestCriticalPathTiesBrokenByPriorityThenID(t *testing.T) {
	// Two disconnected single nodes with equal (zero) hours; critical
	// priority should win over medium, and "a" should win over "z" on id
	// when priority also ties.
	nodes := map[string]NodeInfo{
		"z": {ID: "z", PriorityRank: 2},
		"a": {ID: "a", PriorityRank: 0},
	}
	path := CriticalPath(nil, nodes)
	if len(path) != 1 || path[0] != "a" {
		t.Errorf("expected critical-priority node 'a' to win tie-break, got %v", path)
	}

	sameRank := map[string]NodeInfo{
		"z": {ID: "z", PriorityRank: 2},
		"a": {ID: "a", PriorityRank: 2},
	}
	path = CriticalPath(nil, sameRank)
	if len(path) != 1 || path[0] != "a" {
		t.Errorf("expected lower id 'a' to win tie-break on equal priority, got %v", path)
	}
}
