// Package graph builds an id-indexed adjacency view over stored Connections
// and runs traversal, shortest-path, and clustering algorithms on it. Never
// embeds Memory objects: every node is an id, resolved against storage only
// when the caller needs more than connectivity (spec §9).
package graph

import (
	"context"
	"math"
	"sort"

	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

const maxVisitedNodes = 100

type edge struct {
	to       string
	connType string
	strength float64
}

// Graph is an undirected adjacency view built from a Connection list.
type Graph struct {
	adj map[string][]edge
}

// Build indexes connections by both endpoints so traversal treats every edge
// as undirected (spec §4.8). Dangling ids are tolerated: an edge is only
// skipped at traversal time if its target cannot be resolved by the caller,
// never at build time.
func Build(connections []*model.Connection) *Graph {
	g := &Graph{adj: make(map[string][]edge)}
	for _, c := range connections {
		g.adj[c.SourceID] = append(g.adj[c.SourceID], edge{to: c.TargetID, connType: c.Type, strength: c.Strength})
		g.adj[c.TargetID] = append(g.adj[c.TargetID], edge{to: c.SourceID, connType: c.Type, strength: c.Strength})
	}
	return g
}

// LoadFromStorage fetches every connection recorded for agentID and builds a
// Graph from it.
func LoadFromStorage(ctx context.Context, storage ports.StoragePort, agentID string) (*Graph, error) {
	conns, err := storage.ConnectionList(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return Build(conns), nil
}

// TraversalFilter restricts which edges FindConnectedMemories crosses.
// FindPath takes no filter and crosses every edge.
type TraversalFilter struct {
	ConnectionTypes []string
	MinStrength     float64
}

func (f TraversalFilter) allows(e edge) bool {
	if f.MinStrength > 0 && e.strength < f.MinStrength {
		return false
	}
	if len(f.ConnectionTypes) == 0 {
		return true
	}
	for _, t := range f.ConnectionTypes {
		if t == e.connType {
			return true
		}
	}
	return false
}

// FindConnectedMemories returns startID plus every node reachable from it
// within maxDepth undirected hops through edges matching filter, capped at
// 100 visited nodes (spec §4.8).
func (g *Graph) FindConnectedMemories(startID string, maxDepth int, filter TraversalFilter) []string {
	type queued struct {
		id    string
		depth int
	}

	visited := map[string]bool{startID: true}
	queue := []queued{{startID, 0}}
	var result []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		result = append(result, cur.id)
		if cur.depth >= maxDepth {
			continue
		}

		for _, e := range g.adj[cur.id] {
			if !filter.allows(e) {
				continue
			}
			if visited[e.to] {
				continue
			}
			if len(visited) >= maxVisitedNodes {
				break
			}
			visited[e.to] = true
			queue = append(queue, queued{e.to, cur.depth + 1})
		}
	}

	return result
}

// FindPath returns the first path BFS finds from src to tgt within maxDepth
// hops, or nil if none exists. Returns []string{src} when src == tgt.
func (g *Graph) FindPath(src, tgt string, maxDepth int) []string {
	if src == tgt {
		return []string{src}
	}

	type queued struct {
		id   string
		path []string
	}

	visited := map[string]bool{src: true}
	queue := []queued{{src, []string{src}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if len(cur.path)-1 >= maxDepth {
			continue
		}

		for _, e := range g.adj[cur.id] {
			if visited[e.to] {
				continue
			}
			nextPath := append(append([]string(nil), cur.path...), e.to)
			if e.to == tgt {
				return nextPath
			}
			visited[e.to] = true
			queue = append(queue, queued{e.to, nextPath})
		}
	}

	return nil
}

// Cluster is one connected component of size >= 2.
type Cluster struct {
	Members     []string `json:"members"`
	Size        int      `json:"size"`
	AvgStrength float64  `json:"avgStrength"`
}

// FindClusters runs iterative DFS over the full graph to compute connected
// components, keeping only components with 2+ members, sorted by size
// descending (spec §4.8).
func (g *Graph) FindClusters() []Cluster {
	visited := make(map[string]bool)
	var clusters []Cluster

	nodes := make([]string, 0, len(g.adj))
	for id := range g.adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	for _, start := range nodes {
		if visited[start] {
			continue
		}

		var members []string
		var strengthSum float64
		var strengthCount int

		stack := []string{start}
		visited[start] = true
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, id)

			for _, e := range g.adj[id] {
				strengthSum += e.strength
				strengthCount++
				if !visited[e.to] {
					visited[e.to] = true
					stack = append(stack, e.to)
				}
			}
		}

		if len(members) < 2 {
			continue
		}

		sort.Strings(members)
		avg := 0.0
		if strengthCount > 0 {
			avg = math.Round((strengthSum/float64(strengthCount))*1000) / 1000
		}
		clusters = append(clusters, Cluster{Members: members, Size: len(members), AvgStrength: avg})
	}

	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].Size > clusters[j].Size })
	return clusters
}

// Insights aggregates per-memory degree and graph-wide summary stats
// (spec §4.8 getGraphInsights).
type Insights struct {
	Degree            map[string]int `json:"degree"`
	EdgeCount         int            `json:"edgeCount"`
	StrongestEdge     float64        `json:"strongestEdge"`
	MostConnectedNode string         `json:"mostConnectedNode"`
	AverageDegree     float64        `json:"averageDegree"`
	Clusters          []Cluster      `json:"clusters"`
}

// GetGraphInsights summarises the graph's overall shape.
func (g *Graph) GetGraphInsights() Insights {
	degree := make(map[string]int, len(g.adj))
	edgeCount := 0
	strongest := 0.0
	mostConnected := ""
	maxDegree := -1

	for id, edges := range g.adj {
		degree[id] = len(edges)
		edgeCount += len(edges)
		if len(edges) > maxDegree {
			maxDegree = len(edges)
			mostConnected = id
		}
		for _, e := range edges {
			if e.strength > strongest {
				strongest = e.strength
			}
		}
	}
	edgeCount /= 2 // each undirected edge counted from both endpoints

	avgDegree := 0.0
	if len(degree) > 0 {
		total := 0
		for _, d := range degree {
			total += d
		}
		avgDegree = float64(total) / float64(len(degree))
	}

	return Insights{
		Degree:            degree,
		EdgeCount:         edgeCount,
		StrongestEdge:     strongest,
		MostConnectedNode: mostConnected,
		AverageDegree:     avgDegree,
		Clusters:          g.FindClusters(),
	}
}
