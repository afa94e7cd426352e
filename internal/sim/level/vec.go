package level

import "math"

type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }
func (v Vec3) Scale(f float64) Vec3 { return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) LengthSqr() float64   { return v.Dot(v) }
func (v Vec3) Length() float64      { return math.Sqrt(v.LengthSqr()) }

func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l < 1e-4 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func (v Vec3) DistanceToSqr(o Vec3) float64 { return v.Sub(o).LengthSqr() }
func (v Vec3) DistanceTo(o Vec3) float64    { return v.Sub(o).Length() }

// CloserThan reports whether o lies strictly within d of v.
func (v Vec3) CloserThan(o Vec3, d float64) bool { return v.DistanceToSqr(o) < d*d }

func (v Vec3) HorizontalDistanceSqr(o Vec3) float64 {
	dx := v.X - o.X
	dz := v.Z - o.Z
	return dx*dx + dz*dz
}

type BlockPos struct {
	X int
	Y int
	Z int
}

// Containing returns the block cell that holds v.
func Containing(v Vec3) BlockPos {
	return BlockPos{X: floor(v.X), Y: floor(v.Y), Z: floor(v.Z)}
}

// AtBottomCenterOf is the point an entity stands on when it occupies p.
func AtBottomCenterOf(p BlockPos) Vec3 {
	return Vec3{X: float64(p.X) + 0.5, Y: float64(p.Y), Z: float64(p.Z) + 0.5}
}

func (p BlockPos) Offset(dx, dy, dz int) BlockPos {
	return BlockPos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

func (p BlockPos) Above() BlockPos { return p.Offset(0, 1, 0) }
func (p BlockPos) Below() BlockPos { return p.Offset(0, -1, 0) }

func (p BlockPos) Center() Vec3 {
	return Vec3{X: float64(p.X) + 0.5, Y: float64(p.Y) + 0.5, Z: float64(p.Z) + 0.5}
}

// CloserToCenterThan reports whether the center of p lies within d of v.
func (p BlockPos) CloserToCenterThan(v Vec3, d float64) bool {
	return p.Center().CloserThan(v, d)
}

func (p BlockPos) DistSqr(o BlockPos) int {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

func (p BlockPos) DistManhattan(o BlockPos) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y) + abs(p.Z-o.Z)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func floor(f float64) int { return int(math.Floor(f)) }
