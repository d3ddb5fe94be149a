package course

import "github.com/DoyleJ11/skio-race/pkg/rng"

// MaxRouteSteps bounds the trailing route history carried in a snapshot.
const MaxRouteSteps = 1200

// Position is where a racer sits on the network: on Node, travelling
// between neighbor slots From and To, T of the way along the curve.
type Position struct {
	Node       int     `json:"node"`
	From       int     `json:"from"`
	To         int     `json:"to"`
	T          float64 `json:"t"`
	Checkpoint int     `json:"checkpoint"`
	AtStart    bool    `json:"atStart"`
}

// RouteStep is one traversed junction.
type RouteStep struct {
	Node int `json:"node"`
	From int `json:"from"`
	To   int `json:"to"`
}

// Mirror keeps a graph and course in step with a room's seeds, rebuilding
// only what changed. The server keeps one per room and a Go client can use
// the same type to reconstruct what it was sent.
type Mirror struct {
	mapSeed int64
	legSeed int64
	count   int

	graph  *Graph
	course *Course
}

// Sync brings the mirror up to date and reports whether anything changed.
func (m *Mirror) Sync(mapSeed, legSeed int64, count int) bool {
	count = ClampCheckpointCount(count)
	if m.graph != nil && m.mapSeed == mapSeed && m.legSeed == legSeed && m.count == count {
		return false
	}
	if m.graph == nil || m.mapSeed != mapSeed {
		m.graph = NewGraph(mapSeed)
	}
	m.course = NewCourse(m.graph, legSeed, count)
	m.mapSeed, m.legSeed, m.count = mapSeed, legSeed, count
	return true
}

func (m *Mirror) Graph() *Graph   { return m.graph }
func (m *Mirror) Course() *Course { return m.course }

// StartPose places a racer on the start node heading between two distinct
// branches. It draws from legSeed+1 so it never disturbs course selection.
func (m *Mirror) StartPose() (Position, bool) {
	if m.graph == nil || m.course == nil {
		return Position{}, false
	}
	return StartPose(m.graph, m.course, m.legSeed+1), true
}

// StartPose is the pose a client places its racer in before the first move.
// Only Go clients need it; the server never places racers.
func StartPose(g *Graph, c *Course, seed int64) (p Position) {
	rng.Scoped(seed, func(r *rng.Rand) { p = startPose(g, c, r) })
	return p
}

func startPose(g *Graph, c *Course, r *rng.Rand) Position {
	n := &g.Nodes[c.Start]
	p := Position{Node: c.Start, T: 0.5, AtStart: true}
	p.From = n.NthNeighborSlot(r.IntRange(1, 4))
	p.To = p.From
	if n.Degree < 2 {
		return p
	}
	for p.To == p.From {
		p.To = n.NthNeighborSlot(r.IntRange(1, 4))
	}
	return p
}

// ClampPosition forces a reported position into range for the current
// graph and course and repairs neighbor slots that do not exist. It never
// checks that the position is reachable.
func (m *Mirror) ClampPosition(p Position) (Position, bool) {
	if m.graph == nil || len(m.graph.Nodes) == 0 {
		return Position{}, false
	}
	p.Node = clampInt(p.Node, 0, len(m.graph.Nodes)-1)
	p.From = clampInt(p.From, 0, 3)
	p.To = clampInt(p.To, 0, 3)
	p.T = clamp(p.T, 0, 1)
	checkpoints := 0
	if m.course != nil {
		checkpoints = len(m.course.Checkpoints)
	}
	p.Checkpoint = clampInt(p.Checkpoint, 0, checkpoints)

	n := &m.graph.Nodes[p.Node]
	if n.Degree == 0 {
		return p, true
	}
	if !n.HasNeighbor(p.From) {
		p.From = n.NthNeighborSlot(1)
	}
	if !n.HasNeighbor(p.To) || p.To == p.From {
		p.To = n.NthNeighborSlot(1)
		if p.To == p.From {
			p.To = n.NthNeighborSlot(2)
		}
	}
	return p, true
}

// ClampRoute keeps the trailing MaxRouteSteps entries with slots clamped.
func (m *Mirror) ClampRoute(steps []RouteStep) []RouteStep {
	if m.graph == nil || len(m.graph.Nodes) == 0 || len(steps) == 0 {
		return nil
	}
	if len(steps) > MaxRouteSteps {
		steps = steps[len(steps)-MaxRouteSteps:]
	}
	out := make([]RouteStep, 0, len(steps))
	for _, s := range steps {
		if s.Node < 0 || s.Node >= len(m.graph.Nodes) {
			continue
		}
		out = append(out, RouteStep{
			Node: s.Node,
			From: clampInt(s.From, 0, 3),
			To:   clampInt(s.To, 0, 3),
		})
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
