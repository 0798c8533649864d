// Package graph maintains the in-memory relation graph: directed typed
// edges between documents and concept nodes, with write-through
// persistence and acyclicity enforcement on version chains.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// Graph is the authoritative adjacency structure. Every mutation is
// written through to the RelationStore before the in-memory view changes,
// so a crash can lose at most an acknowledged-but-unapplied edge, never
// invent one.
type Graph struct {
	mu    sync.RWMutex
	store driven.RelationStore
	cfg   domain.GraphConfig

	out map[string][]domain.Relation
	in  map[string][]domain.Relation

	// chrono holds the chronological direction of version edges only:
	// version_next(u,v) yields u->v, version_prev(u,v) yields v->u.
	// Acyclicity is enforced on this projection.
	chrono map[string]map[string]struct{}
}

// New builds an empty graph backed by the given store.
func New(store driven.RelationStore, cfg domain.GraphConfig) *Graph {
	return &Graph{
		store:  store,
		cfg:    cfg,
		out:    make(map[string][]domain.Relation),
		in:     make(map[string][]domain.Relation),
		chrono: make(map[string]map[string]struct{}),
	}
}

// Load replays the persisted edge set into memory. Called once at startup
// before the graph serves traffic.
func (g *Graph) Load(ctx context.Context) error {
	rels, err := g.store.AllRelations(ctx)
	if err != nil {
		return fmt.Errorf("loading relations: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = make(map[string][]domain.Relation)
	g.in = make(map[string][]domain.Relation)
	g.chrono = make(map[string]map[string]struct{})
	for _, rel := range rels {
		g.applyLocked(rel)
	}
	return nil
}

// AddRelation validates, persists and applies one edge. Version edges
// that would close a cycle in the chronological projection are rejected
// with a RelationCycleError and nothing is written.
func (g *Graph) AddRelation(ctx context.Context, rel domain.Relation) error {
	if !rel.Type.Valid() {
		return domain.NewValidationError("type", fmt.Sprintf("unknown relation type %q", rel.Type))
	}
	if rel.SourceID == "" || rel.TargetID == "" {
		return domain.NewValidationError("relation", "source and target ids are required")
	}
	if rel.SourceID == rel.TargetID {
		return domain.NewValidationError("relation", "self-referencing edges are not allowed")
	}
	if rel.Weight < 0 || rel.Weight > 1 {
		return domain.NewValidationError("weight", "must be in [0,1]")
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if rel.Type.IsVersion() {
		from, to := chronoArc(rel)
		if g.reachesLocked(to, from) {
			return &domain.RelationCycleError{
				SourceID: rel.SourceID,
				TargetID: rel.TargetID,
				Type:     rel.Type,
			}
		}
	}

	if err := g.store.SaveRelation(ctx, rel); err != nil {
		return fmt.Errorf("persisting relation: %w", err)
	}
	g.applyLocked(rel)
	return nil
}

// chronoArc maps a version edge onto its chronological direction.
func chronoArc(rel domain.Relation) (from, to string) {
	if rel.Type == domain.RelationVersionPrev {
		return rel.TargetID, rel.SourceID
	}
	return rel.SourceID, rel.TargetID
}

// reachesLocked reports whether target is reachable from start in the
// chronological projection. The walk is bounded by CycleWalkLimit; an
// exhausted walk is treated as reachable so an oversized chain can never
// sneak a cycle past the check.
func (g *Graph) reachesLocked(start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]struct{}{start: {}}
	stack := []string{start}
	steps := 0

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g.chrono[node] {
			steps++
			if steps > g.cfg.CycleWalkLimit {
				return true
			}
			if next == target {
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false
}

// applyLocked inserts or updates the edge in the in-memory adjacency.
func (g *Graph) applyLocked(rel domain.Relation) {
	g.out[rel.SourceID] = upsertEdge(g.out[rel.SourceID], rel)
	g.in[rel.TargetID] = upsertEdge(g.in[rel.TargetID], rel)

	if rel.Type.IsVersion() {
		from, to := chronoArc(rel)
		arcs, ok := g.chrono[from]
		if !ok {
			arcs = make(map[string]struct{})
			g.chrono[from] = arcs
		}
		arcs[to] = struct{}{}
	}
}

// upsertEdge replaces an existing (source, target, type) triple or appends.
func upsertEdge(edges []domain.Relation, rel domain.Relation) []domain.Relation {
	for i, e := range edges {
		if e.SourceID == rel.SourceID && e.TargetID == rel.TargetID && e.Type == rel.Type {
			edges[i] = rel
			return edges
		}
	}
	return append(edges, rel)
}

// Neighbors returns the edges touching a node, outgoing before incoming,
// optionally filtered by type. Order is deterministic.
func (g *Graph) Neighbors(_ context.Context, nodeID string, types ...domain.RelationType) ([]domain.Relation, error) {
	wanted := make(map[domain.RelationType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}
	keep := func(rel domain.Relation) bool {
		if len(wanted) == 0 {
			return true
		}
		_, ok := wanted[rel.Type]
		return ok
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var rels []domain.Relation
	for _, rel := range g.out[nodeID] {
		if keep(rel) {
			rels = append(rels, rel)
		}
	}
	for _, rel := range g.in[nodeID] {
		if keep(rel) {
			rels = append(rels, rel)
		}
	}
	sortEdges(rels)
	return rels, nil
}

func sortEdges(rels []domain.Relation) {
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		if rels[i].TargetID != rels[j].TargetID {
			return rels[i].TargetID < rels[j].TargetID
		}
		return rels[i].Type < rels[j].Type
	})
}

// InferredOutgoing counts the inferred edges originating at a document,
// used to cap similarity-inferred complements per document.
func (g *Graph) InferredOutgoing(docID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, rel := range g.out[docID] {
		if rel.Inferred {
			n++
		}
	}
	return n
}

// EdgeCount returns the number of stored relations.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, rels := range g.out {
		n += len(rels)
	}
	return n
}

// RemoveNode handles a tombstoned node: its outgoing edges are deleted,
// its incoming edges are preserved but flagged broken, and the ids of the
// documents holding those incoming edges are returned so their metadata
// can record the broken link.
func (g *Graph) RemoveNode(ctx context.Context, nodeID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.DeleteOutgoing(ctx, nodeID); err != nil {
		return nil, fmt.Errorf("deleting outgoing edges: %w", err)
	}
	if err := g.store.FlagBrokenLinks(ctx, nodeID); err != nil {
		return nil, fmt.Errorf("flagging broken links: %w", err)
	}

	for _, rel := range g.out[nodeID] {
		g.in[rel.TargetID] = dropEdges(g.in[rel.TargetID], nodeID, true)
		if rel.Type.IsVersion() {
			from, to := chronoArc(rel)
			delete(g.chrono[from], to)
		}
	}
	delete(g.out, nodeID)

	var referencing []string
	seen := make(map[string]struct{})
	incoming := g.in[nodeID]
	for i := range incoming {
		incoming[i].BrokenLink = true
		src := incoming[i].SourceID
		g.out[src] = flagEdges(g.out[src], nodeID)
		if _, ok := seen[src]; !ok {
			seen[src] = struct{}{}
			referencing = append(referencing, src)
		}
	}
	sort.Strings(referencing)
	return referencing, nil
}

// dropEdges removes edges whose other endpoint is nodeID. When bySource
// is true, edges originating at nodeID are removed, otherwise edges
// targeting it.
func dropEdges(edges []domain.Relation, nodeID string, bySource bool) []domain.Relation {
	kept := edges[:0]
	for _, e := range edges {
		endpoint := e.TargetID
		if bySource {
			endpoint = e.SourceID
		}
		if endpoint != nodeID {
			kept = append(kept, e)
		}
	}
	return kept
}

// flagEdges marks edges targeting nodeID as broken.
func flagEdges(edges []domain.Relation, nodeID string) []domain.Relation {
	for i := range edges {
		if edges[i].TargetID == nodeID {
			edges[i].BrokenLink = true
		}
	}
	return edges
}

// VersionChain returns the full version chain containing docID, oldest
// first, plus the document's VersionInfo. A document with no version
// edges is a chain of one.
func (g *Graph) VersionChain(_ context.Context, docID string) ([]string, domain.VersionInfo, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Walk back to the oldest version.
	root := docID
	visited := map[string]struct{}{root: {}}
	for {
		prev := g.chronoPredecessorLocked(root)
		if prev == "" {
			break
		}
		if _, seen := visited[prev]; seen {
			break
		}
		visited[prev] = struct{}{}
		root = prev
	}

	// Walk forward collecting the chain.
	chain := []string{root}
	seen := map[string]struct{}{root: {}}
	node := root
	for {
		next := g.chronoSuccessorLocked(node)
		if next == "" {
			break
		}
		if _, dup := seen[next]; dup {
			break
		}
		seen[next] = struct{}{}
		chain = append(chain, next)
		node = next
	}

	info := domain.VersionInfo{Position: 1}
	for i, id := range chain {
		if id == docID {
			info.Position = i + 1
			if i > 0 {
				info.PreviousID = chain[i-1]
			}
			break
		}
	}
	return chain, info, nil
}

func (g *Graph) chronoPredecessorLocked(node string) string {
	var preds []string
	for from, arcs := range g.chrono {
		if _, ok := arcs[node]; ok {
			preds = append(preds, from)
		}
	}
	if len(preds) == 0 {
		return ""
	}
	sort.Strings(preds)
	return preds[0]
}

func (g *Graph) chronoSuccessorLocked(node string) string {
	arcs := g.chrono[node]
	if len(arcs) == 0 {
		return ""
	}
	var succs []string
	for to := range arcs {
		succs = append(succs, to)
	}
	sort.Strings(succs)
	return succs[0]
}
