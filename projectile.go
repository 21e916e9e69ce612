package main

import "sync/atomic"

const (
	ProjectileSpeed  = 3.0 // world units per reference frame
	ProjectileRadius = 5.0
	ProjectileDamage = 60
)

// Projectile is a rocket fired by a unit at an enemy
type Projectile struct {
	ID      int
	Pos     Vec2
	Vel     Vec2
	Faction Faction
	Radius  float64
	Damage  int

	active atomic.Bool
}

// NewProjectile launches a projectile from the shooter toward target
func NewProjectile(id int, shooter *Unit, target Vec2, speed float64, damage int) *Projectile {
	p := &Projectile{
		ID:      id,
		Pos:     shooter.Pos,
		Vel:     target.Sub(shooter.Pos).Normalized().Scale(speed),
		Faction: shooter.Faction,
		Radius:  ProjectileRadius,
		Damage:  damage,
	}
	p.active.Store(true)
	return p
}

// Active reports whether the projectile is still in flight
func (p *Projectile) Active() bool {
	return p.active.Load()
}

// Claim deactivates the projectile and reports whether this caller did it.
// Exactly one of any number of concurrent callers wins.
func (p *Projectile) Claim() bool {
	return p.active.CompareAndSwap(true, false)
}

// restore re-arms a projectile whose claim was rolled back
func (p *Projectile) restore() {
	p.active.Store(true)
}

// Intersects checks the projectile circle against another circle
func (p *Projectile) Intersects(center Vec2, radius float64) bool {
	return CheckCollision(p.Pos, p.Radius, center, radius)
}

// Update moves the projectile one tick and returns its previous position
func (p *Projectile) Update(dt float64) Vec2 {
	old := p.Pos
	if p.Active() {
		p.Pos = p.Pos.Add(p.Vel.Scale(dt))
	}
	return old
}
