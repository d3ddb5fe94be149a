// Package course builds the race network and the checkpoint chain from
// integer seeds. The server and every client run it independently, so the
// order of random draws is part of the contract: changing it changes every
// course ever handed out.
//
// Besides what the server needs, the package carries the pieces a Go client
// uses to rebuild and inspect what it was sent: Mirror.StartPose, StartPose,
// Graph.EdgeCount and Graph.Connected.
package course

import "math"

const (
	GridSize = 20
	Scale    = 20.0

	// Neighbor slots, in draw order.
	Up    = 0
	Down  = 1
	Left  = 2
	Right = 3

	NoNeighbor = -1
)

var (
	dx = [4]int{0, 0, -1, 1}
	dy = [4]int{-1, 1, 0, 0}
)

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Len is written out instead of math.Hypot so rounding matches the client.
func (v Vec2) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y) }

func Lerp(a, b Vec2, t float64) Vec2 {
	return Vec2{interpolate(a.X, b.X, t), interpolate(a.Y, b.Y, t)}
}

func interpolate(a, b, t float64) float64 { return a + (b-a)*t }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Node is one junction of the course network.
type Node struct {
	Index     int    `json:"index"`
	Pos       Vec2   `json:"pos"`
	Neighbors [4]int `json:"neighbors"`
	// Center is the curve anchor: own position and neighbor midpoints averaged.
	Center Vec2 `json:"center"`
	Degree int  `json:"degree"`
	// StartNeighbor biases which branch a curve is drawn from; two-way
	// nodes always end up positive.
	StartNeighbor int `json:"startNeighbor"`
}

func (n *Node) HasNeighbor(slot int) bool {
	return slot >= 0 && slot < 4 && n.Neighbors[slot] != NoNeighbor
}

// NthNeighborSlot walks the slots cyclically and returns the slot of the
// n-th present neighbor (n >= 1). It returns NoNeighbor for isolated nodes.
func (n *Node) NthNeighborSlot(nth int) int {
	if n.Degree == 0 {
		return NoNeighbor
	}
	slot := -1
	for nth > 0 {
		slot++
		if slot >= 4 {
			slot = 0
		}
		if n.Neighbors[slot] != NoNeighbor {
			nth--
		}
	}
	return slot
}

// Graph is the generated network. Node indices are stable for a seed.
type Graph struct {
	Seed  int64  `json:"seed"`
	Nodes []Node `json:"nodes"`
}

func (g *Graph) Len() int { return len(g.Nodes) }

func (g *Graph) Node(i int) (*Node, bool) {
	if i < 0 || i >= len(g.Nodes) {
		return nil, false
	}
	return &g.Nodes[i], true
}

func (g *Graph) EdgeCount() int {
	total := 0
	for i := range g.Nodes {
		total += g.Nodes[i].Degree
	}
	return total / 2
}

// Connected reports whether every node is reachable from node 0.
func (g *Graph) Connected() bool {
	if len(g.Nodes) == 0 {
		return true
	}
	seen := make([]bool, len(g.Nodes))
	stack := []int{0}
	seen[0] = true
	count := 1
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, nb := range g.Nodes[cur].Neighbors {
			if nb != NoNeighbor && !seen[nb] {
				seen[nb] = true
				count++
				stack = append(stack, nb)
			}
		}
	}
	return count == len(g.Nodes)
}
