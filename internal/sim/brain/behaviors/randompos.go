package behaviors

import (
	"math"

	"voxelmind.ai/internal/sim/level"
)

const randomPosAttempts = 10

// RandomPos picks a stable standing spot within h blocks horizontally and v
// vertically of the walker.
func RandomPos[E Walker](w level.World, e E, h, v int) (level.BlockPos, bool) {
	return randomPos(w, e, h, v, nil)
}

// RandomPosTowards is RandomPos restricted to spots that bring the walker
// closer to target, preferring the closest candidate.
func RandomPosTowards[E Walker](w level.World, e E, target level.BlockPos, h, v int) (level.BlockPos, bool) {
	return randomPos(w, e, h, v, &target)
}

func randomPos[E Walker](w level.World, e E, h, v int, toward *level.BlockPos) (level.BlockPos, bool) {
	origin := level.Containing(e.Position())
	rng := e.Random()
	n := e.Navigation()
	best, found := level.BlockPos{}, false
	bestDist := math.MaxInt
	if toward != nil {
		bestDist = origin.DistSqr(*toward)
	}
	for i := 0; i < randomPosAttempts; i++ {
		x := origin.X + rng.Intn(2*h+1) - h
		z := origin.Z + rng.Intn(2*h+1) - h
		p, ok := standable(w, x, z, origin.Y+v, origin.Y-v)
		if !ok || !n.IsStableDestination(p) {
			continue
		}
		if toward == nil {
			return p, true
		}
		if d := p.DistSqr(*toward); d < bestDist {
			best, bestDist, found = p, d, true
		}
	}
	return best, found
}

// standable scans a column downward for an open two-block gap over a solid
// floor.
func standable(w level.World, x, z, top, bottom int) (level.BlockPos, bool) {
	if bottom < w.MinY()+1 {
		bottom = w.MinY() + 1
	}
	for y := top; y >= bottom; y-- {
		p := level.BlockPos{X: x, Y: y, Z: z}
		feet, head, floor := w.BlockAt(p), w.BlockAt(p.Above()), w.BlockAt(p.Below())
		if floor.Solid && !feet.Solid && !feet.Fluid && !head.Solid {
			return p, true
		}
	}
	return level.BlockPos{}, false
}
