// Package voxel is an in-memory chunked block world implementing level.World.
package voxel

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"voxelmind.ai/internal/sim/level"
)

type Config struct {
	Seed      int64
	MinY      int
	Height    int
	SurfaceY  int
	BoundaryR int
	DayTicks  int
	DayOffset uint64

	SpawnClearRadius int
	ObstaclePermille int

	Blocks []BlockDef
}

func (c *Config) applyDefaults() {
	if c.Height <= 0 {
		c.Height = 16
	}
	if c.SurfaceY == 0 {
		c.SurfaceY = c.MinY + 4
	}
	if c.BoundaryR <= 0 {
		c.BoundaryR = 256
	}
	if c.DayTicks <= 0 {
		c.DayTicks = 24000
	}
	if c.SpawnClearRadius <= 0 {
		c.SpawnClearRadius = 6
	}
	if len(c.Blocks) == 0 {
		c.Blocks = DefaultBlocks()
	}
}

type World struct {
	cfg     Config
	palette *Palette

	tick atomic.Uint64

	mu       sync.RWMutex
	chunks   map[ChunkKey]*Chunk
	entities []level.EntityRef
	damage   map[string]level.DamageSource
}

var _ level.World = (*World)(nil)

func New(cfg Config) (*World, error) {
	cfg.applyDefaults()
	p, err := NewPalette(cfg.Blocks)
	if err != nil {
		return nil, err
	}
	return &World{
		cfg:     cfg,
		palette: p,
		chunks:  map[ChunkKey]*Chunk{},
		damage:  map[string]level.DamageSource{},
	}, nil
}

func (w *World) Config() Config       { return w.cfg }
func (w *World) Palette() *Palette    { return w.palette }
func (w *World) GameTime() uint64     { return w.tick.Load() }
func (w *World) DayTime() uint64      { return w.tick.Load() + w.cfg.DayOffset }
func (w *World) MinY() int            { return w.cfg.MinY }
func (w *World) SurfaceY() int        { return w.cfg.SurfaceY }
func (w *World) SetGameTime(t uint64) { w.tick.Store(t) }

// Advance moves the clock one tick forward and returns the new game time.
func (w *World) Advance() uint64 { return w.tick.Add(1) }

func (w *World) InBounds(p level.BlockPos) bool {
	if p.Y < w.cfg.MinY || p.Y >= w.cfg.MinY+w.cfg.Height {
		return false
	}
	r := w.cfg.BoundaryR
	return p.X >= -r && p.X <= r && p.Z >= -r && p.Z <= r
}

func (w *World) chunkAt(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	w.mu.RLock()
	ch, ok := w.chunks[k]
	w.mu.RUnlock()
	if ok {
		return ch
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok := w.chunks[k]; ok {
		return ch
	}
	ch = newChunk(cx, cz, w.cfg.MinY, w.cfg.Height)
	w.generateChunk(ch)
	ch.dirty = true
	_ = ch.Digest()
	w.chunks[k] = ch
	return ch
}

func (w *World) blockID(p level.BlockPos) uint16 {
	if !w.InBounds(p) {
		return 0
	}
	ch := w.chunkAt(floorDiv(p.X, ChunkSize), floorDiv(p.Z, ChunkSize))
	return ch.Get(mod(p.X, ChunkSize), p.Y, mod(p.Z, ChunkSize))
}

func (w *World) BlockAt(p level.BlockPos) level.Block {
	d := w.palette.Def(w.blockID(p))
	return level.Block{Kind: d.ID, Solid: d.Solid, Fluid: d.Fluid}
}

// SetBlock must not be called while entities are being ticked.
func (w *World) SetBlock(p level.BlockPos, id string) {
	if !w.InBounds(p) {
		return
	}
	b := w.palette.MustID(id)
	ch := w.chunkAt(floorDiv(p.X, ChunkSize), floorDiv(p.Z, ChunkSize))
	w.mu.Lock()
	ch.Set(mod(p.X, ChunkSize), p.Y, mod(p.Z, ChunkSize), b)
	w.mu.Unlock()
}

func (w *World) FloorLevel(p level.BlockPos) float64 {
	if w.BlockAt(p).Solid {
		return float64(p.Y + 1)
	}
	return float64(p.Y)
}

func (w *World) ClearBetween(from, to level.Vec3, throughFluids bool) bool {
	d := to.Sub(from)
	steps := int(math.Ceil(d.Length() / 0.2))
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		pt := from.Add(d.Scale(float64(i) / float64(steps)))
		b := w.BlockAt(level.Containing(pt))
		if b.Solid {
			return false
		}
		if b.Fluid && !throughFluids {
			return false
		}
	}
	return true
}

// SetEntities replaces the entity index read by sensors. Call it between
// ticks so parallel shards see a stable view.
func (w *World) SetEntities(refs []level.EntityRef) {
	cp := append([]level.EntityRef(nil), refs...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })
	w.mu.Lock()
	w.entities = cp
	w.mu.Unlock()
}

func (w *World) EntitiesWithin(center level.Vec3, radius float64) []level.EntityRef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []level.EntityRef
	r2 := radius * radius
	for _, e := range w.entities {
		if e.Pos.DistanceToSqr(center) <= r2 {
			out = append(out, e)
		}
	}
	return out
}

func (w *World) RecordDamage(entityID string, src level.DamageSource) {
	w.mu.Lock()
	w.damage[entityID] = src
	w.mu.Unlock()
}

func (w *World) ClearDamage(entityID string) {
	w.mu.Lock()
	delete(w.damage, entityID)
	w.mu.Unlock()
}

func (w *World) LastDamage(entityID string) (level.DamageSource, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d, ok := w.damage[entityID]
	return d, ok
}

func (w *World) LoadedChunkKeys() []ChunkKey {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := make([]ChunkKey, 0, len(w.chunks))
	for k := range w.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}
