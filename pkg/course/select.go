package course

import "github.com/DoyleJ11/skio-race/pkg/rng"

const (
	MinCheckpoints     = 1
	MaxCheckpoints     = 10
	DefaultCheckpoints = 3
)

// spacing is tried in order until some unused node is far enough away.
var spacing = [...]float64{55, 44, 30, 0}

// Course is one leg: a start node and the ordered checkpoints, the last of
// which is the destination.
type Course struct {
	Start       int   `json:"start"`
	Checkpoints []int `json:"checkpoints"`
	// Degenerate is set when no checkpoint could be placed and the start
	// node doubles as the only checkpoint.
	Degenerate bool `json:"degenerate,omitempty"`
}

func (c *Course) Destination() int {
	return c.Checkpoints[len(c.Checkpoints)-1]
}

func ClampCheckpointCount(n int) int {
	if n < MinCheckpoints {
		return MinCheckpoints
	}
	if n > MaxCheckpoints {
		return MaxCheckpoints
	}
	return n
}

// NewCourse picks the leg for legSeed on g. It returns nil for an empty graph.
func NewCourse(g *Graph, legSeed int64, count int) *Course {
	var c *Course
	rng.Scoped(legSeed, func(r *rng.Rand) { c = Select(g, r, count) })
	return c
}

// Select draws a start node and a checkpoint chain from r.
func Select(g *Graph, r *rng.Rand, count int) *Course {
	if g == nil || len(g.Nodes) == 0 {
		return nil
	}
	count = ClampCheckpointCount(count)

	c := &Course{Start: r.IntRange(0, len(g.Nodes)-1)}
	used := map[int]bool{c.Start: true}
	prev := c.Start
	for len(c.Checkpoints) < count {
		next := NoNeighbor
		for _, minDist := range spacing {
			if next = pickCheckpoint(g, r, prev, used, minDist); next != NoNeighbor {
				break
			}
		}
		if next == NoNeighbor {
			break
		}
		c.Checkpoints = append(c.Checkpoints, next)
		used[next] = true
		prev = next
	}

	if len(c.Checkpoints) == 0 {
		c.Checkpoints = []int{c.Start}
		c.Degenerate = true
	}
	return c
}

// pickCheckpoint draws uniformly among unused nodes whose center lies at
// least minDist from prev. Nothing is drawn when there are no candidates.
func pickCheckpoint(g *Graph, r *rng.Rand, prev int, used map[int]bool, minDist float64) int {
	from := g.Nodes[prev].Center
	var candidates []int
	for i := range g.Nodes {
		if used[i] {
			continue
		}
		if g.Nodes[i].Center.Sub(from).Len() < minDist {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return NoNeighbor
	}
	return candidates[r.IntRange(0, len(candidates)-1)]
}
