package main

import "sync"

// RoutePlanner produces waypoints from a unit to a destination. It is called
// from pool workers and must be safe for concurrent use. A nil or empty
// route sends the unit straight at its destination.
type RoutePlanner interface {
	Route(u *Unit, dest Vec2) []Vec2
}

// DirectPlanner never plans; units steer straight to their destination
type DirectPlanner struct{}

func (DirectPlanner) Route(*Unit, Vec2) []Vec2 { return nil }

type tileStep struct {
	col, row int
	diagonal bool
}

var tileNeighborOffsets = [...]tileStep{
	{col: 0, row: -1},
	{col: 1, row: 0},
	{col: 0, row: 1},
	{col: -1, row: 0},
	{col: 1, row: -1, diagonal: true},
	{col: 1, row: 1, diagonal: true},
	{col: -1, row: 1, diagonal: true},
	{col: -1, row: -1, diagonal: true},
}

// TilePlanner runs a breadth-first search over TileSize cells. Cells whose
// center circle overlaps an obstacle are not walkable. Routes are cached per
// (start cell, goal cell) pair and shared read-only between units.
type TilePlanner struct {
	cols, rows int
	width      float64
	height     float64
	walkable   []bool

	cache sync.Map // [2]int -> []Vec2
}

// NewTilePlanner rasterizes obstacles onto a width x height tile grid
func NewTilePlanner(obstacles []Rect, width, height float64) *TilePlanner {
	grid := NewSpatialGrid(width, height)
	cols, rows := grid.Dims()
	tp := &TilePlanner{
		cols:     cols,
		rows:     rows,
		width:    width,
		height:   height,
		walkable: make([]bool, cols*rows),
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			center := tp.worldPos(col, row)
			blocked := false
			for _, obs := range obstacles {
				if obs.IntersectsCircle(center, UnitRadius) {
					blocked = true
					break
				}
			}
			tp.walkable[tp.index(col, row)] = !blocked
		}
	}
	return tp
}

func (tp *TilePlanner) inBounds(col, row int) bool {
	return col >= 0 && row >= 0 && col < tp.cols && row < tp.rows
}

func (tp *TilePlanner) index(col, row int) int {
	return row*tp.cols + col
}

func (tp *TilePlanner) worldPos(col, row int) Vec2 {
	return Vec2{
		X: (float64(col) + 0.5) * TileSize,
		Y: (float64(row) + 0.5) * TileSize,
	}
}

// Walkable reports whether the tile containing pos can be entered
func (tp *TilePlanner) Walkable(pos Vec2) bool {
	col, row := TileOf(pos)
	return tp.inBounds(col, row) && tp.walkable[tp.index(col, row)]
}

func (tp *TilePlanner) locate(pos Vec2) (int, int) {
	col, row := TileOf(pos)
	return clampInt(col, 0, tp.cols-1), clampInt(row, 0, tp.rows-1)
}

func (tp *TilePlanner) canStep(col, row int, d tileStep) bool {
	nc, nr := col+d.col, row+d.row
	if !tp.inBounds(nc, nr) || !tp.walkable[tp.index(nc, nr)] {
		return false
	}
	if !d.diagonal {
		return true
	}
	// No corner cutting
	return tp.walkable[tp.index(nc, row)] && tp.walkable[tp.index(col, nr)]
}

// closestWalkable finds the nearest walkable cell by breadth-first search
func (tp *TilePlanner) closestWalkable(col, row int) (int, bool) {
	start := tp.index(col, row)
	if tp.walkable[start] {
		return start, true
	}
	visited := make([]bool, len(tp.walkable))
	visited[start] = true
	queue := []int{start}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if tp.walkable[idx] {
			return idx, true
		}
		c, r := idx%tp.cols, idx/tp.cols
		for _, d := range tileNeighborOffsets {
			nc, nr := c+d.col, r+d.row
			if !tp.inBounds(nc, nr) {
				continue
			}
			n := tp.index(nc, nr)
			if visited[n] {
				continue
			}
			visited[n] = true
			queue = append(queue, n)
		}
	}
	return 0, false
}

// Route returns tile-center waypoints from u to dest, excluding the start
// tile. The result is nil when no path exists.
func (tp *TilePlanner) Route(u *Unit, dest Vec2) []Vec2 {
	sc, sr := tp.locate(u.Pos)
	gc, gr := tp.locate(dest)
	start, ok := tp.closestWalkable(sc, sr)
	if !ok {
		return nil
	}
	goal, ok := tp.closestWalkable(gc, gr)
	if !ok {
		return nil
	}
	key := [2]int{start, goal}
	if cached, ok := tp.cache.Load(key); ok {
		return cached.([]Vec2)
	}
	route := tp.bfs(start, goal)
	tp.cache.Store(key, route)
	return route
}

func (tp *TilePlanner) bfs(start, goal int) []Vec2 {
	if start == goal {
		return nil
	}
	parent := make([]int, len(tp.walkable))
	for i := range parent {
		parent[i] = -1
	}
	parent[start] = start
	queue := []int{start}
	found := false
	for len(queue) > 0 && !found {
		idx := queue[0]
		queue = queue[1:]
		c, r := idx%tp.cols, idx/tp.cols
		for _, d := range tileNeighborOffsets {
			if !tp.canStep(c, r, d) {
				continue
			}
			n := tp.index(c+d.col, r+d.row)
			if parent[n] != -1 {
				continue
			}
			parent[n] = idx
			if n == goal {
				found = true
				break
			}
			queue = append(queue, n)
		}
	}
	if !found {
		return nil
	}

	var cells []int
	for idx := goal; idx != start; idx = parent[idx] {
		cells = append(cells, idx)
	}
	route := make([]Vec2, 0, len(cells))
	for i := len(cells) - 1; i >= 0; i-- {
		route = append(route, tp.worldPos(cells[i]%tp.cols, cells[i]/tp.cols))
	}
	return compressRoute(route)
}

// compressRoute drops waypoints in the middle of straight runs
func compressRoute(route []Vec2) []Vec2 {
	if len(route) < 3 {
		return route
	}
	out := []Vec2{route[0]}
	for i := 1; i < len(route)-1; i++ {
		if Orientation(out[len(out)-1], route[i], route[i+1]) == Collinear {
			continue
		}
		out = append(out, route[i])
	}
	return append(out, route[len(route)-1])
}
