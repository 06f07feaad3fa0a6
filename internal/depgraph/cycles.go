package depgraph

import (
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// DetectTemplateCycles runs Kahn's algorithm over template inheritance and
// include edges. Shortcode calls are excluded: their recursion is bounded at
// expansion time. A cycle yields a fatal CyclicTemplateGraph error whose
// "cycle" context lists the members in reference order, first member repeated
// at the end.
func (g *Graph) DetectTemplateCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inScope := func(entityID string) bool {
		kind, _ := Split(entityID)
		return kind == EntityTemplate || kind == EntityInclude
	}
	structural := func(k EdgeKind) bool {
		return k == KindTemplateUse || k == KindInclude
	}

	// adjacency follows consumer -> producer so cycles read in reference order.
	adj := make(map[string][]string)
	indeg := make(map[string]int)
	for consumer, refs := range g.refs {
		if !inScope(consumer) {
			continue
		}
		if _, ok := indeg[consumer]; !ok {
			indeg[consumer] = 0
		}
		for _, r := range refs {
			if !structural(r.Kind) || !inScope(r.Producer) {
				continue
			}
			if _, exists := g.refs[r.Producer]; !exists {
				continue
			}
			adj[consumer] = append(adj[consumer], r.Producer)
			indeg[r.Producer]++
		}
	}

	var queue []string
	for n, d := range indeg {
		if d == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		delete(indeg, n)
		for _, p := range adj[n] {
			indeg[p]--
			if indeg[p] == 0 {
				queue = append(queue, p)
			}
		}
	}
	if len(indeg) == 0 {
		return nil
	}

	cycle := findCycle(adj, indeg)
	names := make([]string, len(cycle))
	for i, c := range cycle {
		_, names[i] = Split(c)
	}
	return ferrors.TemplateError(ferrors.CodeCyclicTemplateGraph, "template cycle: "+strings.Join(names, " -> ")).
		Fatal().
		WithContext("cycle", names).
		Build()
}

// findCycle extracts one cycle from the nodes Kahn's algorithm could not
// remove. Each of them still has a remaining predecessor, so walking
// predecessors must revisit a node. The cycle is returned in reference order,
// rotated to start at its smallest member, with that member repeated last.
func findCycle(adj map[string][]string, remaining map[string]int) []string {
	preds := make(map[string][]string)
	for n, succ := range adj {
		if _, ok := remaining[n]; !ok {
			continue
		}
		for _, s := range succ {
			if _, ok := remaining[s]; ok {
				preds[s] = append(preds[s], n)
			}
		}
	}
	nodes := make([]string, 0, len(remaining))
	for n := range remaining {
		nodes = append(nodes, n)
		sort.Strings(preds[n])
	}
	sort.Strings(nodes)

	pos := map[string]int{}
	var walk []string
	cur := nodes[0]
	for {
		if i, seen := pos[cur]; seen {
			walk = walk[i:]
			break
		}
		pos[cur] = len(walk)
		walk = append(walk, cur)
		cur = preds[cur][0]
	}

	// walk follows predecessors; reverse it into reference order.
	cycle := make([]string, len(walk))
	for i, n := range walk {
		cycle[len(walk)-1-i] = n
	}
	start := 0
	for i, n := range cycle {
		if n < cycle[start] {
			start = i
		}
	}
	out := append(append([]string(nil), cycle[start:]...), cycle[:start]...)
	return append(out, out[0])
}
