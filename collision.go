package main

// CheckCollision checks if two circles overlap (touching counts)
func CheckCollision(a Vec2, ra float64, b Vec2, rb float64) bool {
	radSum := ra + rb
	return a.DistanceSq(b) <= radSum*radSum
}

// Rect is an axis-aligned rectangle spanning Min..Max
type Rect struct {
	Min Vec2
	Max Vec2
}

// NewRect builds a rectangle from its top-left corner and size
func NewRect(min, size Vec2) Rect {
	return Rect{Min: min, Max: min.Add(size)}
}

// Contains reports whether p lies inside the rectangle, edges included
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// IntersectsCircle checks the circle against the closest point of the rectangle
func (r Rect) IntersectsCircle(center Vec2, radius float64) bool {
	closest := Vec2{
		X: Clamp(center.X, r.Min.X, r.Max.X),
		Y: Clamp(center.Y, r.Min.Y, r.Max.Y),
	}
	return center.DistanceSq(closest) <= radius*radius
}
