package graph

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/washwatch/washwatch-go/internal/models"
)

// Edge is one trade expressed as a directed transfer seller -> buyer. Edges
// live in a flat arena indexed by batch position; the adjacency lists hold
// integer indices into it.
type Edge struct {
	Index     int
	TradeID   string
	From      string // seller
	To        string // buyer
	Weight    decimal.Decimal
	Timestamp time.Time
}

// Cycle is a temporal trade loop: a directed cycle whose edges occur in
// strictly increasing timestamp order.
type Cycle struct {
	Path     []string // addresses, starting and ending at the same address
	TradeIDs []string
	Edges    []int
}

// Length returns the number of edges in the cycle.
func (c *Cycle) Length() int {
	return len(c.TradeIDs)
}

// TradeGraph is the directed multigraph over the distinct addresses of one
// batch. It is built once per batch and treated as immutable afterwards, so
// concurrent readers need no locking.
type TradeGraph struct {
	edges     []Edge
	adjacency map[string][]int
	inDegree  map[string]int
	outDegree map[string]int
}

// Build constructs the trade graph for a normalized batch. Each trade
// contributes exactly one edge seller -> buyer. Self-loops are retained (the
// self-trade rule reads them) but skipped during cycle search.
func Build(trades []models.Trade) *TradeGraph {
	g := &TradeGraph{
		edges:     make([]Edge, 0, len(trades)),
		adjacency: make(map[string][]int),
		inDegree:  make(map[string]int),
		outDegree: make(map[string]int),
	}

	for i, trade := range trades {
		edge := Edge{
			Index:     i,
			TradeID:   trade.TradeID,
			From:      trade.SellerAddress,
			To:        trade.BuyerAddress,
			Weight:    trade.BaseAmount,
			Timestamp: trade.Timestamp,
		}
		g.edges = append(g.edges, edge)
		g.adjacency[edge.From] = append(g.adjacency[edge.From], i)
		g.outDegree[edge.From]++
		g.inDegree[edge.To]++
	}

	// Sort adjacency lists by (timestamp, trade id) so traversal order, and
	// with it every downstream result, is independent of input order.
	for _, indices := range g.adjacency {
		sort.Slice(indices, func(a, b int) bool {
			ea, eb := g.edges[indices[a]], g.edges[indices[b]]
			if !ea.Timestamp.Equal(eb.Timestamp) {
				return ea.Timestamp.Before(eb.Timestamp)
			}
			return ea.TradeID < eb.TradeID
		})
	}

	return g
}

// EdgeCount returns the number of edges (trades) in the graph.
func (g *TradeGraph) EdgeCount() int {
	return len(g.edges)
}

// InDegree returns the number of trades in which the address was the buyer.
func (g *TradeGraph) InDegree(address string) int {
	return g.inDegree[address]
}

// OutDegree returns the number of trades in which the address was the seller.
func (g *TradeGraph) OutDegree(address string) int {
	return g.outDegree[address]
}

// Addresses returns the distinct addresses of the batch in sorted order.
func (g *TradeGraph) Addresses() []string {
	seen := make(map[string]struct{}, len(g.inDegree)+len(g.outDegree))
	for addr := range g.inDegree {
		seen[addr] = struct{}{}
	}
	for addr := range g.outDegree {
		seen[addr] = struct{}{}
	}
	addresses := make([]string, 0, len(seen))
	for addr := range seen {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	return addresses
}

// FindTemporalCycles enumerates simple directed cycles of length 2..maxLength
// whose edges occur in strictly increasing timestamp order and whose first
// and last edges lie within the given window. Every temporal cycle has a
// unique earliest edge, so starting the search at each edge and extending
// only with strictly later edges visits each cycle exactly once. Depth is
// capped by maxLength and the window prunes the search, so termination is
// guaranteed.
func (g *TradeGraph) FindTemporalCycles(window time.Duration, maxLength int) []Cycle {
	if maxLength < 2 {
		return nil
	}

	var cycles []Cycle
	for _, start := range g.Addresses() {
		for _, first := range g.adjacency[start] {
			edge := g.edges[first]
			if edge.To == edge.From {
				// 1-node loop, the self-trade rule handles it
				continue
			}
			onPath := map[string]struct{}{start: {}, edge.To: {}}
			g.extend(start, edge, []int{first}, onPath, window, maxLength, &cycles)
		}
	}
	return cycles
}

// extend grows a time-ordered path edge by edge, emitting a cycle whenever
// the path returns to origin within the window.
func (g *TradeGraph) extend(origin string, last Edge, path []int, onPath map[string]struct{}, window time.Duration, maxLength int, cycles *[]Cycle) {
	if len(path) >= maxLength {
		return
	}
	deadline := g.edges[path[0]].Timestamp.Add(window)

	for _, next := range g.adjacency[last.To] {
		edge := g.edges[next]
		if !edge.Timestamp.After(last.Timestamp) {
			continue
		}
		if edge.Timestamp.After(deadline) {
			break // adjacency is time-sorted, nothing later can qualify
		}
		if edge.To == edge.From {
			continue
		}
		if edge.To == origin {
			*cycles = append(*cycles, g.buildCycle(append(append([]int{}, path...), next)))
			continue
		}
		if _, visited := onPath[edge.To]; visited {
			continue
		}
		onPath[edge.To] = struct{}{}
		g.extend(origin, edge, append(path, next), onPath, window, maxLength, cycles)
		delete(onPath, edge.To)
	}
}

func (g *TradeGraph) buildCycle(edgeIndices []int) Cycle {
	cycle := Cycle{
		Path:     make([]string, 0, len(edgeIndices)+1),
		TradeIDs: make([]string, 0, len(edgeIndices)),
		Edges:    edgeIndices,
	}
	for i, idx := range edgeIndices {
		edge := g.edges[idx]
		if i == 0 {
			cycle.Path = append(cycle.Path, edge.From)
		}
		cycle.Path = append(cycle.Path, edge.To)
		cycle.TradeIDs = append(cycle.TradeIDs, edge.TradeID)
	}
	return cycle
}

// CycleIndex maps each trade id to the shortest temporal cycle it lies on.
func CycleIndex(cycles []Cycle) map[string]*Cycle {
	index := make(map[string]*Cycle)
	for i := range cycles {
		cycle := &cycles[i]
		for _, tradeID := range cycle.TradeIDs {
			if existing, ok := index[tradeID]; !ok || cycle.Length() < existing.Length() {
				index[tradeID] = cycle
			}
		}
	}
	return index
}
