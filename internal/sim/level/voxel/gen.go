package voxel

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func withinSpawnClear(x, z, r int) bool {
	if r <= 0 {
		return false
	}
	return x*x+z*z <= r*r
}

// generateChunk fills a flat terrain: stone below the surface, grass at
// SurfaceY-1, and deterministic single-block pillars sprinkled on top.
func (w *World) generateChunk(ch *Chunk) {
	stone := w.palette.MustID("STONE")
	grass := w.palette.MustID("GRASS")
	log := w.palette.MustID("LOG")
	top := w.cfg.MinY + w.cfg.Height
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			wx := ch.CX*ChunkSize + x
			wz := ch.CZ*ChunkSize + z
			for y := w.cfg.MinY; y < w.cfg.SurfaceY-1 && y < top; y++ {
				ch.Blocks[ch.index(x, y, z)] = stone
			}
			if w.cfg.SurfaceY-1 >= w.cfg.MinY && w.cfg.SurfaceY-1 < top {
				ch.Blocks[ch.index(x, w.cfg.SurfaceY-1, z)] = grass
			}
			if w.cfg.ObstaclePermille <= 0 || withinSpawnClear(wx, wz, w.cfg.SpawnClearRadius) {
				continue
			}
			if hash2(w.cfg.Seed+999, wx, wz)%1000 < uint64(w.cfg.ObstaclePermille) && w.cfg.SurfaceY < top {
				ch.Blocks[ch.index(x, w.cfg.SurfaceY, z)] = log
			}
		}
	}
}
