package sensing

import (
	"sort"

	"voxelmind.ai/internal/sim/brain/memkeys"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/level"
)

const defaultEyeHeight = 1.5

type eyed interface {
	EyePosition() level.Vec3
}

func eyePos(e level.Entity) level.Vec3 {
	if x, ok := e.(eyed); ok {
		return x.EyePosition()
	}
	return e.Position().Add(level.Vec3{Y: defaultEyeHeight})
}

func visible(w level.World, e level.Entity, ref level.EntityRef) bool {
	return w.ClearBetween(eyePos(e), ref.Pos.Add(level.Vec3{Y: defaultEyeHeight}), false)
}

// byDistance returns others within radius of e, nearest first. Ties break on
// id so results do not depend on index order.
func byDistance(w level.World, e level.Entity, radius float64, keep func(level.EntityRef) bool) []level.EntityRef {
	pos := e.Position()
	var out []level.EntityRef
	for _, ref := range w.EntitiesWithin(pos, radius) {
		if ref.ID == e.ID() || (keep != nil && !keep(ref)) {
			continue
		}
		out = append(out, ref)
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Pos.DistanceToSqr(pos), out[j].Pos.DistanceToSqr(pos)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NearestLiving lists entities around the owner and the subset it can see.
type NearestLiving struct {
	Base
	Radius       float64
	VisibleRange float64
}

func NewNearestLiving(radius, visibleRange float64) *NearestLiving {
	return &NearestLiving{Base: NewBase("nearest_living_entities", DefaultScanTicks), Radius: radius, VisibleRange: visibleRange}
}

func (s *NearestLiving) Requires() []memory.Handle {
	return []memory.Handle{memkeys.NearestLivingEntities, memkeys.VisibleLivingEntities}
}

func (s *NearestLiving) Clone() Sensor {
	c := *s
	c.countdown = 0
	return &c
}

func (s *NearestLiving) Tick(w level.World, e level.Entity, mem *memory.Store) {
	if !s.Due(e.Type()) {
		return
	}
	near := byDistance(w, e, s.Radius, func(r level.EntityRef) bool { return !r.Player })
	memory.Set(mem, memkeys.NearestLivingEntities, near)

	var seen []level.EntityRef
	pos := e.Position()
	for _, ref := range near {
		if ref.Pos.DistanceToSqr(pos) <= s.VisibleRange*s.VisibleRange && visible(w, e, ref) {
			seen = append(seen, ref)
		}
	}
	memory.Set(mem, memkeys.VisibleLivingEntities, seen)
}

// NearestPlayers lists players around the owner and the nearest visible one.
type NearestPlayers struct {
	Base
	Radius float64
}

func NewNearestPlayers(radius float64) *NearestPlayers {
	return &NearestPlayers{Base: NewBase("nearest_players", DefaultScanTicks), Radius: radius}
}

func (s *NearestPlayers) Requires() []memory.Handle {
	return []memory.Handle{memkeys.NearestPlayers, memkeys.NearestVisiblePlayer}
}

func (s *NearestPlayers) Clone() Sensor {
	c := *s
	c.countdown = 0
	return &c
}

func (s *NearestPlayers) Tick(w level.World, e level.Entity, mem *memory.Store) {
	if !s.Due(e.Type()) {
		return
	}
	players := byDistance(w, e, s.Radius, func(r level.EntityRef) bool { return r.Player })
	memory.Set(mem, memkeys.NearestPlayers, players)
	for _, p := range players {
		if visible(w, e, p) {
			memory.Set(mem, memkeys.NearestVisiblePlayer, p)
			return
		}
	}
	mem.Erase(memkeys.NearestVisiblePlayer)
}

// HurtBy mirrors the last damage the world recorded for the owner.
type HurtBy struct {
	Base
}

func NewHurtBy() *HurtBy {
	return &HurtBy{Base: NewBase("hurt_by", DefaultScanTicks)}
}

func (s *HurtBy) Requires() []memory.Handle {
	return []memory.Handle{memkeys.HurtBy, memkeys.HurtByEntity}
}

func (s *HurtBy) Clone() Sensor {
	c := *s
	c.countdown = 0
	return &c
}

func (s *HurtBy) Tick(w level.World, e level.Entity, mem *memory.Store) {
	if !s.Due(e.Type()) {
		return
	}
	ds, ok := w.LastDamage(e.ID())
	if !ok {
		mem.Erase(memkeys.HurtBy)
		mem.Erase(memkeys.HurtByEntity)
		return
	}
	memory.Set(mem, memkeys.HurtBy, ds)
	if ds.AttackerID != "" {
		memory.Set(mem, memkeys.HurtByEntity, ds.AttackerID)
	} else {
		mem.Erase(memkeys.HurtByEntity)
	}
}

// NearestHostile picks the closest entity whose type is in Ranges and lies
// within that type's range.
type NearestHostile struct {
	Base
	Ranges map[string]float64
}

func NewNearestHostile(ranges map[string]float64) *NearestHostile {
	return &NearestHostile{Base: NewBase("nearest_hostile", DefaultScanTicks), Ranges: ranges}
}

func (s *NearestHostile) Requires() []memory.Handle {
	return []memory.Handle{memkeys.NearestHostile}
}

func (s *NearestHostile) Clone() Sensor {
	c := *s
	c.countdown = 0
	return &c
}

func (s *NearestHostile) Tick(w level.World, e level.Entity, mem *memory.Store) {
	if !s.Due(e.Type()) {
		return
	}
	var maxR float64
	for _, r := range s.Ranges {
		if r > maxR {
			maxR = r
		}
	}
	pos := e.Position()
	hostiles := byDistance(w, e, maxR, func(r level.EntityRef) bool {
		lim, ok := s.Ranges[r.Type]
		return ok && r.Pos.DistanceToSqr(pos) <= lim*lim
	})
	if len(hostiles) == 0 {
		mem.Erase(memkeys.NearestHostile)
		return
	}
	memory.Set(mem, memkeys.NearestHostile, hostiles[0])
}

// NearestBlock stores the closest block of Kind within a box around the
// owner, or erases Key when none is found.
type NearestBlock struct {
	Base
	Kind    string
	Key     memory.Key[level.BlockPos]
	Radius  int
	VRadius int
}

func NewNearestBlock(name, kind string, key memory.Key[level.BlockPos], radius, vradius int) *NearestBlock {
	return &NearestBlock{Base: NewBase(name, 40), Kind: kind, Key: key, Radius: radius, VRadius: vradius}
}

func (s *NearestBlock) Requires() []memory.Handle {
	return []memory.Handle{s.Key}
}

func (s *NearestBlock) Clone() Sensor {
	c := *s
	c.countdown = 0
	return &c
}

func (s *NearestBlock) Tick(w level.World, e level.Entity, mem *memory.Store) {
	if !s.Due(e.Type()) {
		return
	}
	origin := level.Containing(e.Position())
	best, bestD := level.BlockPos{}, -1
	for dy := -s.VRadius; dy <= s.VRadius; dy++ {
		for dz := -s.Radius; dz <= s.Radius; dz++ {
			for dx := -s.Radius; dx <= s.Radius; dx++ {
				p := origin.Offset(dx, dy, dz)
				if w.BlockAt(p).Kind != s.Kind {
					continue
				}
				if d := p.DistSqr(origin); bestD < 0 || d < bestD {
					best, bestD = p, d
				}
			}
		}
	}
	if bestD < 0 {
		mem.Erase(s.Key)
		return
	}
	memory.Set(mem, s.Key, best)
}
