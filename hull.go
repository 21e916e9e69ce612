package main

import (
	"cmp"
	"slices"
)

// Turn is the orientation of an ordered point triple
type Turn int

const (
	Collinear Turn = iota
	Clockwise
	CounterClockwise
)

// Orientation classifies the turn a -> b -> c
func Orientation(a, b, c Vec2) Turn {
	val := (b.Y-a.Y)*(c.X-b.X) - (b.X-a.X)*(c.Y-b.Y)
	switch {
	case val == 0:
		return Collinear
	case val > 0:
		return Clockwise
	default:
		return CounterClockwise
	}
}

// BuildHull runs a Graham scan over points. It returns false when fewer
// than 3 points survive the collinear collapse. points is not modified.
func BuildHull(points []Vec2) ([]Vec2, bool) {
	if len(points) < 3 {
		return nil, false
	}
	sorted := slices.Clone(points)

	// Pivot: lowest y, then lowest x
	pivot := 0
	for i := 1; i < len(sorted); i++ {
		p, best := sorted[i], sorted[pivot]
		if p.Y < best.Y || (p.Y == best.Y && p.X < best.X) {
			pivot = i
		}
	}
	sorted[0], sorted[pivot] = sorted[pivot], sorted[0]
	p0 := sorted[0]

	slices.SortStableFunc(sorted[1:], func(a, b Vec2) int {
		switch Orientation(p0, a, b) {
		case Collinear:
			return cmp.Compare(p0.DistanceSq(a), p0.DistanceSq(b))
		case CounterClockwise:
			return -1
		default:
			return 1
		}
	})

	// Keep only the farthest point of every run collinear with the pivot
	n := len(sorted)
	kept := make([]Vec2, 0, n)
	kept = append(kept, p0)
	for i := 1; i < n-1; i++ {
		if Orientation(p0, sorted[i], sorted[i+1]) == Collinear {
			continue
		}
		kept = append(kept, sorted[i])
	}
	kept = append(kept, sorted[n-1])
	if len(kept) < 3 {
		return nil, false
	}

	hull := make([]Vec2, 0, len(kept))
	hull = append(hull, kept[:3]...)
	for _, p := range kept[3:] {
		for len(hull) > 1 && Orientation(hull[len(hull)-2], hull[len(hull)-1], p) != CounterClockwise {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull, true
}

// Convex reports whether no consecutive triple of the closed polygon turns
// clockwise
func Convex(hull []Vec2) bool {
	n := len(hull)
	for i := 0; i < n; i++ {
		if Orientation(hull[i], hull[(i+1)%n], hull[(i+2)%n]) == Clockwise {
			return false
		}
	}
	return true
}

// FallbackHull is the full-map rectangle used when a hull is corrupt
func FallbackHull(width, height float64) []Vec2 {
	return []Vec2{{0, 0}, {width, 0}, {width, height}, {0, height}}
}

// GuardHull returns hull unchanged if it is convex, otherwise the fallback
// rectangle. The second result reports whether the fallback was used.
func GuardHull(hull []Vec2, width, height float64) ([]Vec2, bool) {
	if Convex(hull) {
		return hull, false
	}
	return FallbackHull(width, height), true
}

// ForcefieldHull builds the guarded hull around points. ok is false when no
// hull could be formed and the caller should keep its previous one.
func ForcefieldHull(points []Vec2, width, height float64) (hull []Vec2, fallback bool, ok bool) {
	built, ok := BuildHull(points)
	if !ok {
		return nil, false, false
	}
	hull, fallback = GuardHull(built, width, height)
	return hull, fallback, true
}

// LeftOfLine reports whether p lies strictly left of the directed line
// start -> end
func LeftOfLine(start, end, p Vec2) bool {
	return (end.X-start.X)*(p.Y-start.Y)-(end.Y-start.Y)*(p.X-start.X) < 0
}

// OutsideHull reports whether p is strictly left of any hull edge
func OutsideHull(hull []Vec2, p Vec2) bool {
	n := len(hull)
	for i := 0; i < n; i++ {
		if LeftOfLine(hull[i], hull[(i+1)%n], p) {
			return true
		}
	}
	return false
}
