package voxel

import (
	"fmt"
	"sort"
)

type BlockDef struct {
	ID    string `json:"id" yaml:"id"`
	Solid bool   `json:"solid" yaml:"solid"`
	Fluid bool   `json:"fluid,omitempty" yaml:"fluid,omitempty"`
}

// Palette maps block ids to the compact uint16 stored in chunks.
// AIR is always palette id 0.
type Palette struct {
	IDs   []string
	Index map[string]uint16
	Defs  map[string]BlockDef
}

func DefaultBlocks() []BlockDef {
	return []BlockDef{
		{ID: "AIR"},
		{ID: "STONE", Solid: true},
		{ID: "DIRT", Solid: true},
		{ID: "GRASS", Solid: true},
		{ID: "LOG", Solid: true},
		{ID: "FENCE", Solid: true},
		{ID: "CAULDRON", Solid: true},
		{ID: "DOOR"},
		{ID: "WATER", Fluid: true},
		{ID: "LAVA", Fluid: true},
	}
}

func NewPalette(defs []BlockDef) (*Palette, error) {
	p := &Palette{Defs: map[string]BlockDef{}}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("blocks: empty id")
		}
		p.Defs[d.ID] = d
	}
	if _, ok := p.Defs["AIR"]; !ok {
		return nil, fmt.Errorf("blocks: missing AIR")
	}
	ids := make([]string, 0, len(p.Defs))
	for id := range p.Defs {
		if id != "AIR" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	p.IDs = append([]string{"AIR"}, ids...)
	p.Index = make(map[string]uint16, len(p.IDs))
	for i, id := range p.IDs {
		p.Index[id] = uint16(i)
	}
	return p, nil
}

func (p *Palette) MustID(id string) uint16 {
	v, ok := p.Index[id]
	if !ok {
		panic("voxel: unknown block " + id)
	}
	return v
}

func (p *Palette) Def(b uint16) BlockDef {
	if int(b) >= len(p.IDs) {
		return BlockDef{ID: "AIR"}
	}
	return p.Defs[p.IDs[b]]
}
