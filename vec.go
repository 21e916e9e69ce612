package main

import "math"

// Vec2 is a 2D world-space vector. Y grows downward, as on screen.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

// SqrLength returns the squared length, avoiding the square root
func (v Vec2) SqrLength() float64 { return v.X*v.X + v.Y*v.Y }

// Length returns the Euclidean length
func (v Vec2) Length() float64 { return math.Sqrt(v.SqrLength()) }

// Normalized returns the unit vector in the same direction.
// The zero vector normalizes to itself.
func (v Vec2) Normalized() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// DistanceSq returns the squared distance between two points
func (v Vec2) DistanceSq(o Vec2) float64 { return v.Sub(o).SqrLength() }
