package main

const (
	ExplosionTicks  = 18 // lifetime of an explosion
	SmokeFrames     = 4
	smokeFrameTicks = 8
)

// Kill smokes are drawn above the wreck; offsets differ by cause
var (
	rocketSmokeOffset = Vec2{7, 24}
	beamSmokeOffset   = Vec2{0, 48}
)

// Explosion is a short-lived effect spawned by a hit or a culled projectile
type Explosion struct {
	Pos   Vec2
	Frame int
}

// Tick advances the explosion one step
func (e *Explosion) Tick() {
	e.Frame++
}

// Done reports whether the explosion has finished
func (e *Explosion) Done() bool {
	return e.Frame >= ExplosionTicks
}

// Smoke marks a destroyed unit and persists for the rest of the battle
type Smoke struct {
	Pos   Vec2
	Frame int

	ticks int
}

// Tick cycles the smoke animation frame
func (s *Smoke) Tick() {
	s.ticks++
	if s.ticks >= smokeFrameTicks {
		s.ticks = 0
		s.Frame = (s.Frame + 1) % SmokeFrames
	}
}
