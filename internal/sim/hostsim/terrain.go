package hostsim

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/reform"
	"reformkit/internal/sim/surface"
)

var ErrOffGrid = errors.New("point is off the reform grid")

type cell struct {
	reformed bool
	kind     decorate.ReformKind
	color    int
}

// Terrain is an in-memory reform grid for one planet. Veins sit on cells.
type Terrain struct {
	Planet surface.Planet
	// SoilPerFlatten is the soil a flatten of a natural cell produces.
	SoilPerFlatten int

	cells    []cell
	reformed int
	veins    map[int]*reform.Vein

	dirty bool
	hash  [32]byte
}

func NewTerrain(p surface.Planet) *Terrain {
	return &Terrain{
		Planet: p,
		cells:  make([]cell, p.CellCount()),
		veins:  map[int]*reform.Vein{},
		dirty:  true,
	}
}

func (t *Terrain) valid(id int) bool { return id >= 0 && id < len(t.cells) }

func (t *Terrain) IsCellReformed(id int) bool { return t.valid(id) && t.cells[id].reformed }

// Cell returns the stored kind and colour of a cell.
func (t *Terrain) Cell(id int) (decorate.ReformKind, int, bool) {
	if !t.valid(id) {
		return decorate.KindUnset, 0, false
	}
	c := t.cells[id]
	return c.kind, c.color, true
}

func (t *Terrain) markReformed(id int) {
	if !t.cells[id].reformed {
		t.cells[id].reformed = true
		t.reformed++
	}
}

func (t *Terrain) SetCellReformKind(id int, kind decorate.ReformKind) error {
	if !t.valid(id) {
		return fmt.Errorf("cell %d: %w", id, ErrOffGrid)
	}
	t.markReformed(id)
	if t.cells[id].kind != kind {
		t.cells[id].kind = kind
		t.dirty = true
	}
	return nil
}

func (t *Terrain) SetCellColor(id int, color int) error {
	if !t.valid(id) {
		return fmt.Errorf("cell %d: %w", id, ErrOffGrid)
	}
	if t.cells[id].color != color {
		t.cells[id].color = color
		t.dirty = true
	}
	return nil
}

func (t *Terrain) CellIDForPoint(p geo.Vec3) int { return t.Planet.CellIDForPoint(p) }

func (t *Terrain) IsPlanetFullyReformed() bool { return t.reformed == len(t.cells) }

// ReformedCount is the number of levelled cells.
func (t *Terrain) ReformedCount() int { return t.reformed }

// FlattenAt levels the cell under p. Only natural cells yield soil; radius
// is accepted for interface parity and does not widen the levelled area.
func (t *Terrain) FlattenAt(p geo.Vec3, radius float64) (int, error) {
	id := t.Planet.CellIDForPoint(p)
	if !t.valid(id) {
		return 0, ErrOffGrid
	}
	if t.cells[id].reformed {
		return 0, nil
	}
	t.markReformed(id)
	t.dirty = true
	return t.SoilPerFlatten, nil
}

// AddVein places a vein; a zero id takes the next free one.
func (t *Terrain) AddVein(v reform.Vein) int {
	if v.ID == 0 {
		v.ID = len(t.veins) + 1
		for t.veins[v.ID] != nil {
			v.ID++
		}
	}
	vv := v
	t.veins[v.ID] = &vv
	t.dirty = true
	return v.ID
}

func (t *Terrain) EachVein(fn func(reform.Vein) bool) {
	ids := make([]int, 0, len(t.veins))
	for id := range t.veins {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if !fn(*t.veins[id]) {
			return
		}
	}
}

func (t *Terrain) SetVeinBuried(id int, buried bool) error {
	v, ok := t.veins[id]
	if !ok {
		return fmt.Errorf("vein %d: %w", id, ErrUnknownEntity)
	}
	if v.Buried != buried {
		v.Buried = buried
		t.dirty = true
	}
	return nil
}

// Digest hashes cell and vein state. It is recomputed only after a change.
func (t *Terrain) Digest() [32]byte {
	if !t.dirty {
		return t.hash
	}
	h := sha256.New()
	var tmp [8]byte
	for _, c := range t.cells {
		var flags uint16
		if c.reformed {
			flags = 1
		}
		binary.LittleEndian.PutUint16(tmp[0:2], flags)
		binary.LittleEndian.PutUint16(tmp[2:4], uint16(c.kind))
		binary.LittleEndian.PutUint32(tmp[4:8], uint32(c.color))
		h.Write(tmp[:])
	}
	t.EachVein(func(v reform.Vein) bool {
		binary.LittleEndian.PutUint32(tmp[0:4], uint32(v.ID))
		var b uint32
		if v.Buried {
			b = 1
		}
		binary.LittleEndian.PutUint32(tmp[4:8], b)
		h.Write(tmp[:])
		return true
	})
	copy(t.hash[:], h.Sum(nil))
	t.dirty = false
	return t.hash
}
