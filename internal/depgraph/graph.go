package depgraph

import (
	"errors"
	"sort"
	"sync"
)

// EdgeKind classifies a dependency.
type EdgeKind string

const (
	KindTemplateUse   EdgeKind = "template-use"
	KindInclude       EdgeKind = "include"
	KindShortcodeCall EdgeKind = "shortcode-call"
	KindDataReference EdgeKind = "data-reference"
	KindFileReference EdgeKind = "file-reference"
)

// ErrFrozen is returned by mutations while a render pass holds the graph.
var ErrFrozen = errors.New("dependency graph is frozen")

// Ref is a reference from a consumer to one producer.
type Ref struct {
	Producer string
	Kind     EdgeKind
}

// Node is an entity together with the producers it references.
type Node struct {
	ID   string
	Refs []Ref
}

// Edge is a resolved dependency between two existing entities.
type Edge struct {
	Producer string
	Consumer string
	Kind     EdgeKind
}

// Graph is safe for concurrent use. Readers never observe a half-applied
// AddOrReplace.
type Graph struct {
	mu sync.RWMutex
	// refs holds each node's declared references, keyed by consumer.
	refs map[string][]Ref
	// consumers is the reverse index: producer -> consumer -> kind.
	consumers map[string]map[string]EdgeKind
	frozen    bool
}

func New() *Graph {
	return &Graph{
		refs:      make(map[string][]Ref),
		consumers: make(map[string]map[string]EdgeKind),
	}
}

// AddOrReplace inserts n or replaces an existing node with the same id,
// dropping the node's previous outgoing references.
func (g *Graph) AddOrReplace(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrFrozen
	}
	g.dropRefsLocked(n.ID)

	refs := dedupeRefs(n.ID, n.Refs)
	g.refs[n.ID] = refs
	for _, r := range refs {
		m := g.consumers[r.Producer]
		if m == nil {
			m = make(map[string]EdgeKind)
			g.consumers[r.Producer] = m
		}
		m[n.ID] = r.Kind
	}
	return nil
}

// Remove deletes a node and its outgoing references. References other
// nodes hold to it remain pending so re-adding it reconnects them.
func (g *Graph) Remove(entityID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrFrozen
	}
	g.dropRefsLocked(entityID)
	delete(g.refs, entityID)
	return nil
}

func (g *Graph) dropRefsLocked(entityID string) {
	for _, r := range g.refs[entityID] {
		if m := g.consumers[r.Producer]; m != nil {
			delete(m, entityID)
			if len(m) == 0 {
				delete(g.consumers, r.Producer)
			}
		}
	}
}

func dedupeRefs(self string, refs []Ref) []Ref {
	seen := make(map[string]bool, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if r.Producer == "" || r.Producer == self || seen[r.Producer] {
			continue
		}
		seen[r.Producer] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Producer < out[j].Producer })
	return out
}

// Has reports whether the entity is present.
func (g *Graph) Has(entityID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.refs[entityID]
	return ok
}

// Refs returns the declared references of a node.
func (g *Graph) Refs(entityID string) []Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Ref(nil), g.refs[entityID]...)
}

// Nodes returns all entity ids, sorted.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.refs))
	for n := range g.refs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Edges returns edges whose producer and consumer both exist, sorted.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for consumer, refs := range g.refs {
		for _, r := range refs {
			if _, ok := g.refs[r.Producer]; ok {
				out = append(out, Edge{Producer: r.Producer, Consumer: consumer, Kind: r.Kind})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Producer != out[j].Producer {
			return out[i].Producer < out[j].Producer
		}
		return out[i].Consumer < out[j].Consumer
	})
	return out
}

// AffectedBy returns the transitive closure of consumers of entityID,
// breadth-first over reversed edges. The result excludes entityID and is
// sorted. The entity does not have to exist: a deleted or not yet created
// producer still reaches the nodes that reference it.
func (g *Graph) AffectedBy(entityID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[string]bool{entityID: true}
	queue := []string{entityID}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for consumer := range g.consumers[cur] {
			if visited[consumer] {
				continue
			}
			visited[consumer] = true
			if _, exists := g.refs[consumer]; exists {
				out = append(out, consumer)
			}
			queue = append(queue, consumer)
		}
	}
	sort.Strings(out)
	return out
}

// AffectedByAll unions AffectedBy over ids and includes the ids themselves.
func (g *Graph) AffectedByAll(ids []string) []string {
	set := make(map[string]bool)
	for _, id := range ids {
		set[id] = true
		for _, a := range g.AffectedBy(id) {
			set[a] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Freeze disallows mutation until Unfreeze.
func (g *Graph) Freeze() {
	g.mu.Lock()
	g.frozen = true
	g.mu.Unlock()
}

func (g *Graph) Unfreeze() {
	g.mu.Lock()
	g.frozen = false
	g.mu.Unlock()
}

func (g *Graph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}
