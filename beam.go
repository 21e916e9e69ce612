package main

const (
	BeamDamage = 50
	BeamPhases = 30
)

// Beam is a static damage zone
type Beam struct {
	Rect   Rect
	Damage int
	Phase  int // animation phase, 0..BeamPhases-1
}

// NewBeam creates a beam covering min..min+size
func NewBeam(min, size Vec2, damage int) *Beam {
	return &Beam{Rect: NewRect(min, size), Damage: damage}
}

// Tick advances the animation phase
func (b *Beam) Tick() {
	b.Phase++
	if b.Phase == BeamPhases {
		b.Phase = 0
	}
}

// Touches reports whether the beam overlaps the unit's collision circle
func (b *Beam) Touches(u *Unit) bool {
	return b.Rect.IntersectsCircle(u.Pos, u.Radius)
}
