// Package nav follows paths produced by a Pathfinder. It drives a mob one
// waypoint at a time and abandons paths that stop making progress.
package nav

import (
	"math"

	"voxelmind.ai/internal/sim/level"
)

type PathType uint8

const (
	Blocked PathType = iota
	Open
	Walkable
	WalkableDoor
	Trapdoor
	Fence
	Water
	WaterBorder
	Lava
	Leaves
	DangerFire
	DamageFire
	DangerOther
	DamageOther
	DoorOpen
	DoorWoodClosed
)

var pathTypeNames = [...]string{
	Blocked:        "blocked",
	Open:           "open",
	Walkable:       "walkable",
	WalkableDoor:   "walkable_door",
	Trapdoor:       "trapdoor",
	Fence:          "fence",
	Water:          "water",
	WaterBorder:    "water_border",
	Lava:           "lava",
	Leaves:         "leaves",
	DangerFire:     "danger_fire",
	DamageFire:     "damage_fire",
	DangerOther:    "danger_other",
	DamageOther:    "damage_other",
	DoorOpen:       "door_open",
	DoorWoodClosed: "door_wood_closed",
}

func (t PathType) String() string {
	if int(t) < len(pathTypeNames) {
		return pathTypeNames[t]
	}
	return "unknown"
}

// Node is one waypoint. Coordinates are block coordinates.
type Node struct {
	X, Y, Z int
	Type    PathType
}

func (n Node) Pos() level.BlockPos { return level.BlockPos{X: n.X, Y: n.Y, Z: n.Z} }

// Moved returns a copy of n at the given coordinates, keeping its type.
func (n Node) Moved(x, y, z int) Node {
	return Node{X: x, Y: y, Z: z, Type: n.Type}
}

// Path is an ordered list of waypoints plus the target the search aimed for.
// Reached is false for partial paths that stop short of the target.
type Path struct {
	nodes   []Node
	next    int
	target  level.BlockPos
	reached bool
}

func NewPath(nodes []Node, target level.BlockPos, reached bool) *Path {
	return &Path{nodes: append([]Node(nil), nodes...), target: target, reached: reached}
}

func (p *Path) NodeCount() int         { return len(p.nodes) }
func (p *Path) NextIndex() int         { return p.next }
func (p *Path) Target() level.BlockPos { return p.target }
func (p *Path) CanReach() bool         { return p.reached }
func (p *Path) IsDone() bool           { return p.next >= len(p.nodes) }
func (p *Path) Advance()               { p.next++ }

func (p *Path) SetNextIndex(i int) { p.next = i }

func (p *Path) Node(i int) Node { return p.nodes[i] }

func (p *Path) Nodes() []Node { return append([]Node(nil), p.nodes...) }

func (p *Path) ReplaceNode(i int, n Node) { p.nodes[i] = n }

func (p *Path) NextNode() Node { return p.nodes[p.next] }

func (p *Path) NextNodePos() level.BlockPos { return p.nodes[p.next].Pos() }

// EndNode returns the last node, or false for an empty path.
func (p *Path) EndNode() (Node, bool) {
	if len(p.nodes) == 0 {
		return Node{}, false
	}
	return p.nodes[len(p.nodes)-1], true
}

// EntityPosAt is the point a mob of the given width aims for at node i.
func (p *Path) EntityPosAt(i int, width float64) level.Vec3 {
	n := p.nodes[i]
	off := float64(int(width+1)) * 0.5
	return level.Vec3{X: float64(n.X) + off, Y: float64(n.Y), Z: float64(n.Z) + off}
}

func (p *Path) NextEntityPos(width float64) level.Vec3 {
	return p.EntityPosAt(p.next, width)
}

// SameAs reports whether other visits the same cells in the same order.
func (p *Path) SameAs(other *Path) bool {
	if other == nil || len(other.nodes) != len(p.nodes) {
		return false
	}
	for i, n := range p.nodes {
		o := other.nodes[i]
		if n.X != o.X || n.Y != o.Y || n.Z != o.Z {
			return false
		}
	}
	return true
}

// DistToTarget is the Manhattan distance from the end node to the target.
func (p *Path) DistToTarget() float64 {
	end, ok := p.EndNode()
	if !ok {
		return math.Inf(1)
	}
	return math.Abs(float64(end.X-p.target.X)) + math.Abs(float64(end.Y-p.target.Y)) + math.Abs(float64(end.Z-p.target.Z))
}
