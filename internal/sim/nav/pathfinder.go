package nav

import "voxelmind.ai/internal/sim/level"

// Region bounds the cells a search may visit, inclusive.
type Region struct {
	Min level.BlockPos
	Max level.BlockPos
}

func (r Region) Contains(p level.BlockPos) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}

type Request struct {
	World   level.World
	Region  Region
	Mob     Mob
	Start   level.BlockPos
	Targets []level.BlockPos
	// MaxRange is the follow range; targets further than this are skipped.
	MaxRange float64
	// Accuracy is how close (in blocks) the end node must get to a target.
	Accuracy int
	// MaxVisitedNodes already includes the node budget multiplier.
	MaxVisitedNodes int
	Config          PathConfig
}

// Pathfinder turns a request into a path. It returns nil when no useful
// path exists.
type Pathfinder interface {
	FindPath(req Request) *Path
}

type PathfinderFunc func(req Request) *Path

func (f PathfinderFunc) FindPath(req Request) *Path { return f(req) }
