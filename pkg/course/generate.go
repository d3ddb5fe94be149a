package course

import (
	"math"

	"github.com/DoyleJ11/skio-race/pkg/rng"
)

const (
	carveChance = 0.6
	thinChance  = 0.1
	jitter      = 0.4
	warpStep    = 15
	allSides    = 15
)

type cells [GridSize][GridSize]uint8

// NewGraph generates the network for mapSeed.
func NewGraph(mapSeed int64) *Graph {
	var g *Graph
	rng.Scoped(mapSeed, func(r *rng.Rand) { g = Generate(r) })
	g.Seed = mapSeed
	return g
}

// Generate builds a network from r. Every step draws from r in a fixed
// order, so the same stream always produces the same graph.
func Generate(r *rng.Rand) *Graph {
	var grid cells
	initGrid(&grid)
	carve(&grid, r)
	thin(&grid, r)
	stripDeadEnds(&grid)
	keepMainRegion(&grid)
	pos := warp(r)
	return materialize(&grid, &pos, r)
}

func initGrid(grid *cells) {
	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			grid[x][y] = allSides
		}
	}
	for a := 0; a < GridSize; a++ {
		grid[a][0] &^= 1 << Up
		grid[a][GridSize-1] &^= 1 << Down
		grid[0][a] &^= 1 << Left
		grid[GridSize-1][a] &^= 1 << Right
	}
}

// cut removes the connection on side a of (x, y) from both ends.
func (grid *cells) cut(x, y, a int) {
	grid[x][y] &^= 1 << a
	grid[x+dx[a]][y+dy[a]] &^= 1 << (a ^ 1)
}

func (grid *cells) isolate(x, y int) {
	for a := 0; a < 4; a++ {
		if grid[x][y]&(1<<a) != 0 {
			grid.cut(x, y, a)
		}
	}
}

func degree(mask uint8) int {
	n := 0
	for a := 0; a < 4; a++ {
		if mask&(1<<a) != 0 {
			n++
		}
	}
	return n
}

// carve opens regions at block sizes 2..5 by isolating block anchors.
func carve(grid *cells, r *rng.Rand) {
	for s := 2; s < 6; s++ {
		for x := 0; x < GridSize; x += s {
			for y := 0; y < GridSize; y += s {
				if r.Chance(carveChance) {
					grid.isolate(x, y)
				}
			}
		}
	}
}

func thin(grid *cells, r *rng.Rand) {
	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			for a := 0; a < 4; a++ {
				if grid[x][y]&(1<<a) != 0 && r.Chance(thinChance) {
					grid.cut(x, y, a)
				}
			}
		}
	}
}

func stripDeadEnds(grid *cells) {
	for busy := true; busy; {
		busy = false
		for x := 0; x < GridSize; x++ {
			for y := 0; y < GridSize; y++ {
				if degree(grid[x][y]) == 1 {
					grid.isolate(x, y)
					busy = true
				}
			}
		}
	}
}

// keepMainRegion keeps the first region, in x-major order of its earliest
// cell, that covers more than 1/16 of the grid. If no region is that large
// the biggest one is kept instead.
func keepMainRegion(grid *cells) {
	var visited, keep [GridSize][GridSize]bool
	bestSize := 0
	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			if grid[x][y] == 0 || visited[x][y] {
				continue
			}
			var mark [GridSize][GridSize]bool
			size := flood(grid, x, y, &mark)
			for i := range mark {
				for j := range mark[i] {
					if mark[i][j] {
						visited[i][j] = true
					}
				}
			}
			if size > bestSize {
				bestSize = size
				keep = mark
			}
			if size > GridSize*GridSize/16 {
				keep = mark
				x, y = GridSize, GridSize
			}
		}
	}

	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			if !keep[x][y] {
				grid.isolate(x, y)
			}
		}
	}
}

func flood(grid *cells, x, y int, mark *[GridSize][GridSize]bool) int {
	type cell struct{ x, y int }
	mark[x][y] = true
	size := 1
	stack := []cell{{x, y}}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for a := 0; a < 4; a++ {
			if grid[c.x][c.y]&(1<<a) == 0 {
				continue
			}
			nx, ny := c.x+dx[a], c.y+dy[a]
			if !mark[nx][ny] {
				mark[nx][ny] = true
				size++
				stack = append(stack, cell{nx, ny})
			}
		}
	}
	return size
}

// warp jitters every cell and then bends the lattice around a few swirl
// centers. Purely cosmetic, but clients render from it.
func warp(r *rng.Rand) [GridSize][GridSize]Vec2 {
	var pos [GridSize][GridSize]Vec2
	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			px := float64(x) + r.Range(-jitter, jitter)
			py := float64(y) + r.Range(-jitter, jitter)
			pos[x][y] = Vec2{px, py}
		}
	}

	for cx := 0; cx <= GridSize; cx += warpStep {
		for cy := 0; cy <= GridSize; cy += warpStep {
			center := Vec2{float64(cx), float64(cy)}
			radius := r.Range(6, 8)
			angle := r.Range(0.7, 1.2)
			if r.Float64() <= 0.5 {
				angle = -angle
			}
			for x := 0; x < GridSize; x++ {
				for y := 0; y < GridSize; y++ {
					p := pos[x][y].Sub(center)
					d := p.Len() / radius
					a := interpolate(angle, 0, clamp(d, 0.5, 1))
					sin, cos := math.Sin(a), math.Cos(a)
					o := Vec2{cos*p.X - sin*p.Y, sin*p.X + cos*p.Y}
					pos[x][y] = o.Add(center)
				}
			}
		}
	}
	return pos
}

func materialize(grid *cells, pos *[GridSize][GridSize]Vec2, r *rng.Rand) *Graph {
	var index [GridSize][GridSize]int
	g := &Graph{}
	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			index[x][y] = NoNeighbor
			if grid[x][y] == 0 {
				continue
			}
			index[x][y] = len(g.Nodes)
			g.Nodes = append(g.Nodes, Node{
				Index:         len(g.Nodes),
				Pos:           Vec2{pos[x][y].X * Scale, pos[x][y].Y * Scale},
				Neighbors:     [4]int{NoNeighbor, NoNeighbor, NoNeighbor, NoNeighbor},
				StartNeighbor: r.IntRange(-5, 5),
			})
		}
	}

	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			if index[x][y] == NoNeighbor {
				continue
			}
			n := &g.Nodes[index[x][y]]
			for a := 0; a < 4; a++ {
				if grid[x][y]&(1<<a) != 0 {
					n.Neighbors[a] = index[x+dx[a]][y+dy[a]]
				}
			}
		}
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		sum := n.Pos
		count := 1
		for _, nb := range n.Neighbors {
			if nb == NoNeighbor {
				continue
			}
			sum = sum.Add(Lerp(n.Pos, g.Nodes[nb].Pos, 0.5))
			count++
		}
		n.Center = Vec2{sum.X / float64(count), sum.Y / float64(count)}
		n.Degree = count - 1
		if n.Degree == 2 && n.StartNeighbor <= 0 {
			n.StartNeighbor = 1
		}
	}
	return g
}
