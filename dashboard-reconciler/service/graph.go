package service

import (
	"math"
	"sort"

	"storage-dashboard/goutils/datamodel"
)

// sunflower layout, new nodes spiral outwards so earlier nodes never move
const (
	goldenAngle  = 2.399963229728653
	layoutRadius = 40.0
)

type (
	Node struct {
		ID       string              `json:"id"`
		Group    datamodel.NodeGroup `json:"group"`
		Label    string              `json:"label"`
		Selected bool                `json:"selected"`
		X        float64             `json:"x"`
		Y        float64             `json:"y"`
	}

	EdgeKey struct {
		RenterID   string `json:"from"`
		ProviderID string `json:"to"`
	}

	// Edge collapses every contract between one renter and one provider.
	Edge struct {
		EdgeKey
		Contracts    int   `json:"contracts"`
		StorageSpace int64 `json:"storageSpace"`
	}

	GraphDiff struct {
		AddedNodes   []string  `json:"addedNodes"`
		RemovedNodes []string  `json:"removedNodes"`
		AddedEdges   []EdgeKey `json:"addedEdges"`
		RemovedEdges []EdgeKey `json:"removedEdges"`
	}

	// Graph is the live network graph. It is only mutated through Reconcile and selection,
	// callers get copies.
	Graph struct {
		nodes    map[string]*Node
		edges    map[EdgeKey]*Edge
		sequence int
	}

	desiredGraph struct {
		nodes map[string]Node
		edges map[EdgeKey]Edge
	}
)

func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[EdgeKey]*Edge),
	}
}

func (d GraphDiff) Empty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// buildDesiredGraph returns one node per renter and provider and one edge per distinct
// renter-provider pair. Contracts referencing unknown participants are skipped.
func buildDesiredGraph(snapshot *datamodel.Snapshot) desiredGraph {
	desired := desiredGraph{
		nodes: make(map[string]Node, len(snapshot.Renters)+len(snapshot.Providers)),
		edges: make(map[EdgeKey]Edge),
	}

	renters := make(map[string]struct{}, len(snapshot.Renters))
	for _, renter := range snapshot.Renters {
		label := renter.Alias
		if label == "" {
			label = renter.ID
		}

		desired.nodes[renter.ID] = Node{ID: renter.ID, Group: datamodel.NodeGroupRenter, Label: label}
		renters[renter.ID] = struct{}{}
	}

	providers := make(map[string]struct{}, len(snapshot.Providers))
	for _, provider := range snapshot.Providers {
		providers[provider.ID] = struct{}{}

		// an account that is both keeps its renter node, same as the detail pane
		if _, ok := renters[provider.ID]; ok {
			continue
		}

		desired.nodes[provider.ID] = Node{ID: provider.ID, Group: datamodel.NodeGroupProvider, Label: provider.ID}
	}

	for _, contract := range snapshot.Contracts {
		if _, ok := renters[contract.RenterID]; !ok {
			continue
		}

		if _, ok := providers[contract.ProviderID]; !ok {
			continue
		}

		key := EdgeKey{RenterID: contract.RenterID, ProviderID: contract.ProviderID}
		edge := desired.edges[key]
		edge.EdgeKey = key
		edge.Contracts++
		edge.StorageSpace += contract.StorageSpace
		desired.edges[key] = edge
	}

	return desired
}

// Reconcile adds what the snapshot has and the graph lacks and removes what the graph has
// and the snapshot lacks. Nodes and edges present on both sides keep their visual state,
// only their data (group, label, contract totals) is refreshed.
func (g *Graph) Reconcile(snapshot *datamodel.Snapshot) GraphDiff {
	desired := buildDesiredGraph(snapshot)
	diff := GraphDiff{}

	for id := range g.nodes {
		if _, ok := desired.nodes[id]; !ok {
			delete(g.nodes, id)
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	for key := range g.edges {
		if _, ok := desired.edges[key]; !ok {
			delete(g.edges, key)
			diff.RemovedEdges = append(diff.RemovedEdges, key)
		}
	}

	// stable insertion order keeps layout positions deterministic for a given snapshot
	nodeIDs := make([]string, 0, len(desired.nodes))
	for id := range desired.nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	for _, id := range nodeIDs {
		want := desired.nodes[id]

		if live, ok := g.nodes[id]; ok {
			live.Group = want.Group
			live.Label = want.Label

			continue
		}

		node := want
		node.X, node.Y = g.nextPosition()
		g.nodes[id] = &node
		diff.AddedNodes = append(diff.AddedNodes, id)
	}

	for key, want := range desired.edges {
		if live, ok := g.edges[key]; ok {
			live.Contracts = want.Contracts
			live.StorageSpace = want.StorageSpace

			continue
		}

		edge := want
		g.edges[key] = &edge
		diff.AddedEdges = append(diff.AddedEdges, key)
	}

	sort.Strings(diff.RemovedNodes)
	sortEdgeKeys(diff.AddedEdges)
	sortEdgeKeys(diff.RemovedEdges)

	return diff
}

func (g *Graph) nextPosition() (float64, float64) {
	g.sequence++
	radius := layoutRadius * math.Sqrt(float64(g.sequence))
	angle := float64(g.sequence) * goldenAngle

	return radius * math.Cos(angle), radius * math.Sin(angle)
}

func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]

	return ok
}

// Select marks id as the only selected node, an empty id clears the selection.
func (g *Graph) Select(id string) {
	for _, node := range g.nodes {
		node.Selected = node.ID == id
	}
}

func (g *Graph) Nodes() []Node {
	nodes := make([]Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, *node)
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})

	return nodes
}

func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.edges))
	for _, edge := range g.edges {
		edges = append(edges, *edge)
	}

	sort.Slice(edges, func(i, j int) bool {
		return edgeKeyLess(edges[i].EdgeKey, edges[j].EdgeKey)
	})

	return edges
}

func (g *Graph) Counts() (renters, providers, edges int) {
	for _, node := range g.nodes {
		if node.Group == datamodel.NodeGroupRenter {
			renters++
		} else {
			providers++
		}
	}

	return renters, providers, len(g.edges)
}

func sortEdgeKeys(keys []EdgeKey) {
	sort.Slice(keys, func(i, j int) bool {
		return edgeKeyLess(keys[i], keys[j])
	})
}

func edgeKeyLess(a, b EdgeKey) bool {
	if a.RenterID != b.RenterID {
		return a.RenterID < b.RenterID
	}

	return a.ProviderID < b.ProviderID
}
