package main

import (
	"math"
	"sync"
)

const TileSize = 16.0 // world units per grid cell

// EntityKind tags what an EntityRef points at
type EntityKind byte

const (
	KindUnit       EntityKind = 'u'
	KindProjectile EntityKind = 'r'
)

// EntityRef identifies an entity in the grid
type EntityRef struct {
	Kind EntityKind
	Idx  int // index into the corresponding battle collection, valid for one step
}

// SpatialGrid is a fixed-size grid for broad-phase collision queries.
// All methods are safe for concurrent use.
type SpatialGrid struct {
	mu    sync.RWMutex
	cols  int
	rows  int
	cells [][]EntityRef
}

// NewSpatialGrid creates a grid covering a width x height playfield
func NewSpatialGrid(width, height float64) *SpatialGrid {
	cols := int(math.Ceil(width / TileSize))
	rows := int(math.Ceil(height / TileSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &SpatialGrid{
		cols:  cols,
		rows:  rows,
		cells: make([][]EntityRef, cols*rows),
	}
}

// Dims returns the number of columns and rows
func (g *SpatialGrid) Dims() (int, int) {
	return g.cols, g.rows
}

// TileOf maps a position to its (col, row) tile without clamping
func TileOf(pos Vec2) (int, int) {
	return int(math.Floor(pos.X / TileSize)), int(math.Floor(pos.Y / TileSize))
}

func (g *SpatialGrid) inBounds(col, row int) bool {
	return col >= 0 && col < g.cols && row >= 0 && row < g.rows
}

// homeIdx returns the bucket for pos, clamped to the nearest edge cell
func (g *SpatialGrid) homeIdx(pos Vec2) int {
	col, row := TileOf(pos)
	col = clampInt(col, 0, g.cols-1)
	row = clampInt(row, 0, g.rows-1)
	return row*g.cols + col
}

// Clear resets all cells (keeps allocated capacity)
func (g *SpatialGrid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds an entity reference at the given position
func (g *SpatialGrid) Insert(ref EntityRef, pos Vec2) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.homeIdx(pos)
	g.cells[idx] = append(g.cells[idx], ref)
}

// Relocate moves ref from the bucket of oldPos to the bucket of newPos.
// No-op when both positions hash to the same cell.
func (g *SpatialGrid) Relocate(ref EntityRef, oldPos, newPos Vec2) {
	from := g.homeIdx(oldPos)
	to := g.homeIdx(newPos)
	if from == to {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	bucket := g.cells[from]
	for i, r := range bucket {
		if r == ref {
			last := len(bucket) - 1
			bucket[i] = bucket[last]
			g.cells[from] = bucket[:last]
			break
		}
	}
	g.cells[to] = append(g.cells[to], ref)
}

// QueryNeighbors appends the refs of the 3x3 block of cells centered on pos
// to buf. A position outside the grid has no neighbours.
func (g *SpatialGrid) QueryNeighbors(pos Vec2, buf []EntityRef) []EntityRef {
	col, row := TileOf(pos)
	if !g.inBounds(col, row) {
		return buf
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			c, r := col+dc, row+dr
			if !g.inBounds(c, r) {
				continue
			}
			buf = append(buf, g.cells[r*g.cols+c]...)
		}
	}
	return buf
}

// Len returns the total number of stored references
func (g *SpatialGrid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, c := range g.cells {
		n += len(c)
	}
	return n
}
