package modreg

import (
	"sort"
	"strings"
)

// dependencyGraph maintains the module dependency DAG. Forward edges record
// what each module requires; inverse edges record who depends on it. The
// graph carries no enablement state of its own — safe-removal queries take a
// predicate so the graph never reaches back into the registry.
//
// The graph is not goroutine-safe; the owning registry serializes access.
type dependencyGraph struct {
	deps       map[string][]string
	dependents map[string]map[string]struct{}
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{
		deps:       make(map[string][]string),
		dependents: make(map[string]map[string]struct{}),
	}
}

// contains reports whether name is a node in the graph.
func (g *dependencyGraph) contains(name string) bool {
	_, ok := g.deps[name]
	return ok
}

// wouldCycle checks whether adding candidate with the given dependencies
// would create a cycle. The traversal runs over the existing graph plus the
// hypothetical new edges, before anything is inserted, so a rejected
// registration never touches graph state. On detection it returns the cycle
// path for the error message.
func (g *dependencyGraph) wouldCycle(candidate string, dependencies []string) (bool, []string) {
	edges := func(name string) []string {
		if name == candidate {
			return dependencies
		}
		return g.deps[name]
	}

	// DFS with a recursion stack: revisiting a node currently on the stack
	// means the candidate edges close a loop.
	onStack := make(map[string]bool)
	visited := make(map[string]bool)
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		if onStack[name] {
			return append(path, name)
		}
		if visited[name] {
			return nil
		}
		onStack[name] = true
		path = append(path, name)

		for _, dep := range edges(name) {
			if cycle := visit(dep); cycle != nil {
				return cycle
			}
		}

		onStack[name] = false
		path = path[:len(path)-1]
		visited[name] = true
		return nil
	}

	if cycle := visit(candidate); cycle != nil {
		return true, trimCycle(cycle)
	}
	return false, nil
}

// trimCycle drops the lead-in portion of a DFS path so the returned slice
// starts and ends at the repeated node.
func trimCycle(path []string) []string {
	last := path[len(path)-1]
	for i, name := range path[:len(path)-1] {
		if name == last {
			return path[i:]
		}
	}
	return path
}

// add inserts a validated node and maintains inverse edges. Callers must
// have already checked wouldCycle and dependency existence.
func (g *dependencyGraph) add(name string, dependencies []string) {
	g.deps[name] = append([]string(nil), dependencies...)
	if g.dependents[name] == nil {
		g.dependents[name] = make(map[string]struct{})
	}
	for _, dep := range dependencies {
		if g.dependents[dep] == nil {
			g.dependents[dep] = make(map[string]struct{})
		}
		g.dependents[dep][name] = struct{}{}
	}
}

// dependentsOf returns the sorted names of modules that directly depend on
// name.
func (g *dependencyGraph) dependentsOf(name string) []string {
	set := g.dependents[name]
	out := make([]string, 0, len(set))
	for dependent := range set {
		out = append(out, dependent)
	}
	sort.Strings(out)
	return out
}

// canRemove reports whether name could be disabled without stranding an
// enabled dependent. Enablement is queried through the supplied predicate.
// It also returns the enabled dependents blocking removal, for the error
// message.
func (g *dependencyGraph) canRemove(name string, isEnabled func(string) bool) (bool, []string) {
	var blocking []string
	for _, dependent := range g.dependentsOf(name) {
		if isEnabled(dependent) {
			blocking = append(blocking, dependent)
		}
	}
	return len(blocking) == 0, blocking
}

// clear resets the graph to empty.
func (g *dependencyGraph) clear() {
	g.deps = make(map[string][]string)
	g.dependents = make(map[string]map[string]struct{})
}

// formatCycle renders a cycle path as "a -> b -> a" for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
