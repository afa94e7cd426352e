// Package pathfind is a bounded A* search over block cells. It implements
// nav.Pathfinder for the demo world and integration tests.
package pathfind

import (
	"container/heap"
	"math"

	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/nav"
)

// MaxFall is the deepest drop a ground walker takes in one step.
const MaxFall = 3

// heuristicWeight biases the search toward the targets. Paths may be
// slightly longer than optimal in exchange for far fewer visited nodes.
const heuristicWeight = 1.5

var malus = map[nav.PathType]float64{
	nav.Walkable:     0,
	nav.Open:         0,
	nav.WalkableDoor: 0,
	nav.DoorOpen:     0,
	nav.Water:        8,
	nav.WaterBorder:  8,
}

type neighbor struct{ dx, dy, dz int }

var flat = [...]neighbor{{0, 0, -1}, {1, 0, 0}, {0, 0, 1}, {-1, 0, 0}}

var volume = [...]neighbor{{0, 0, -1}, {1, 0, 0}, {0, 0, 1}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}}

type pathNode struct {
	pos    level.BlockPos
	typ    nav.PathType
	g      float64
	f      float64
	walked float64
	dist   float64
	index  int
	parent *pathNode
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool { return pq[i].f < pq[j].f }

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pathNode)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// AStar is stateless and safe for concurrent use.
type AStar struct{}

func New() AStar { return AStar{} }

// FindPath searches from req.Start toward the nearest target. When no
// target is reached within the node budget, it returns the path to the
// visited node closest to a target, marked as not reaching it.
func (AStar) FindPath(req nav.Request) *nav.Path {
	if len(req.Targets) == 0 {
		return nil
	}
	s := search{req: req}
	return s.run()
}

type search struct {
	req nav.Request
}

func (s *search) heuristic(p level.BlockPos) (float64, level.BlockPos) {
	best := math.Inf(1)
	var tgt level.BlockPos
	for _, t := range s.req.Targets {
		d := math.Sqrt(float64(p.DistSqr(t)))
		if d < best {
			best, tgt = d, t
		}
	}
	return best, tgt
}

func (s *search) reached(p level.BlockPos) (level.BlockPos, bool) {
	for _, t := range s.req.Targets {
		if p.DistManhattan(t) <= s.req.Accuracy {
			return t, true
		}
	}
	return level.BlockPos{}, false
}

func (s *search) run() *nav.Path {
	start := s.req.Start
	typ := s.classify(start)
	if typ == nav.Blocked {
		typ = nav.Walkable
	}
	h, _ := s.heuristic(start)
	first := &pathNode{pos: start, typ: typ, f: h * heuristicWeight, dist: h}
	open := &pathQueue{}
	heap.Init(open)
	heap.Push(open, first)
	gScore := map[level.BlockPos]float64{start: 0}
	closed := make(map[level.BlockPos]struct{})
	best := first

	budget := s.req.MaxVisitedNodes
	if budget <= 0 {
		budget = 1
	}
	visited := 0
	for open.Len() > 0 && visited < budget {
		current := heap.Pop(open).(*pathNode)
		if _, seen := closed[current.pos]; seen {
			continue
		}
		closed[current.pos] = struct{}{}
		visited++
		if target, ok := s.reached(current.pos); ok {
			return build(current, target, true)
		}
		if current.dist < best.dist || (current.dist == best.dist && current.g < best.g) {
			best = current
		}
		for _, next := range s.neighbors(current.pos) {
			if _, seen := closed[next.pos]; seen {
				continue
			}
			step := math.Sqrt(float64(current.pos.DistSqr(next.pos)))
			walked := current.walked + step
			if walked >= s.req.MaxRange && s.req.MaxRange > 0 {
				continue
			}
			g := current.g + step + malus[next.typ]
			if prev, ok := gScore[next.pos]; ok && g >= prev {
				continue
			}
			gScore[next.pos] = g
			d, _ := s.heuristic(next.pos)
			heap.Push(open, &pathNode{
				pos:    next.pos,
				typ:    next.typ,
				g:      g,
				f:      g + d*heuristicWeight,
				walked: walked,
				dist:   d,
				parent: current,
			})
		}
	}
	if best == first {
		return nil
	}
	_, target := s.heuristic(best.pos)
	return build(best, target, false)
}

type candidate struct {
	pos level.BlockPos
	typ nav.PathType
}

func (s *search) neighbors(p level.BlockPos) []candidate {
	var out []candidate
	if s.req.Config.CanFly {
		for _, d := range volume {
			q := p.Offset(d.dx, d.dy, d.dz)
			if t := s.classify(q); s.allowed(q, t) {
				out = append(out, candidate{q, t})
			}
		}
		return out
	}
	for _, d := range flat {
		q := p.Offset(d.dx, 0, d.dz)
		if c, ok := s.groundStep(p, q); ok {
			out = append(out, c)
		}
	}
	if s.req.Config.CanSwim {
		for _, dy := range [...]int{1, -1} {
			q := p.Offset(0, dy, 0)
			if t := s.classify(q); t == nav.Water && s.allowed(q, t) {
				out = append(out, candidate{q, t})
			}
		}
	}
	return out
}

// groundStep resolves a horizontal move into q, stepping up one block or
// dropping up to MaxFall blocks as needed.
func (s *search) groundStep(from, q level.BlockPos) (candidate, bool) {
	t := s.classify(q)
	switch {
	case t == nav.Blocked:
		up := q.Above()
		if s.solid(from.Offset(0, 2, 0)) {
			return candidate{}, false
		}
		if ut := s.classify(up); s.allowed(up, ut) && ut != nav.Open {
			return candidate{up, ut}, true
		}
		return candidate{}, false
	case t == nav.Open:
		for i := 1; i <= MaxFall; i++ {
			d := q.Offset(0, -i, 0)
			dt := s.classify(d)
			if dt == nav.Blocked {
				return candidate{}, false
			}
			if dt != nav.Open {
				if s.allowed(d, dt) {
					return candidate{d, dt}, true
				}
				return candidate{}, false
			}
		}
		return candidate{}, false
	}
	if !s.allowed(q, t) {
		return candidate{}, false
	}
	return candidate{q, t}, true
}

func (s *search) solid(p level.BlockPos) bool { return s.req.World.BlockAt(p).Solid }

// classify labels the cell an entity would occupy at p.
func (s *search) classify(p level.BlockPos) nav.PathType {
	w := s.req.World
	if p.Y <= w.MinY() {
		return nav.Blocked
	}
	feet, head := w.BlockAt(p), w.BlockAt(p.Above())
	if feet.Solid || head.Solid {
		return nav.Blocked
	}
	switch feet.Kind {
	case "LAVA":
		return nav.Lava
	case "WATER":
		return nav.Water
	case "DOOR":
		return nav.WalkableDoor
	}
	below := w.BlockAt(p.Below())
	switch {
	case below.Kind == "FENCE":
		return nav.Fence
	case below.Solid:
		return nav.Walkable
	case below.Kind == "WATER":
		return nav.WaterBorder
	}
	return nav.Open
}

func (s *search) allowed(p level.BlockPos, t nav.PathType) bool {
	if !s.req.Region.Contains(p) {
		return false
	}
	cfg := s.req.Config
	switch t {
	case nav.Blocked, nav.Lava, nav.Fence:
		return false
	case nav.Water, nav.WaterBorder:
		return cfg.CanFloat || cfg.CanSwim || cfg.CanFly
	case nav.WalkableDoor:
		return cfg.CanPassDoors || cfg.CanOpenDoors
	case nav.Open:
		return cfg.CanFly
	}
	return true
}

func build(end *pathNode, target level.BlockPos, reached bool) *nav.Path {
	var nodes []nav.Node
	for n := end; n != nil; n = n.parent {
		nodes = append(nodes, nav.Node{X: n.pos.X, Y: n.pos.Y, Z: n.pos.Z, Type: n.typ})
	}
	for i := 0; i < len(nodes)/2; i++ {
		j := len(nodes) - 1 - i
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nav.NewPath(nodes, target, reached)
}
