package main

const (
	UnitRadius       = 3.0
	UnitMaxHealth    = 1000
	UnitMaxSpeed     = 1.0
	ReloadTime       = 200 // steps between shots
	WaypointReach    = 4.0 // advance the route cursor within this distance
	DestinationReach = 1.0 // stop moving within this distance of the destination
)

// Faction is one of the two opposing sides
type Faction uint8

const (
	Blue Faction = iota
	Red
)

func (f Faction) String() string {
	if f == Red {
		return "red"
	}
	return "blue"
}

// Opponent returns the other faction
func (f Faction) Opponent() Faction {
	if f == Red {
		return Blue
	}
	return Red
}

// Unit is a single combat entity
type Unit struct {
	ID        int
	Pos       Vec2
	Heading   Vec2
	Faction   Faction
	Health    int
	MaxHealth int
	Radius    float64
	MaxSpeed  float64
	Active    bool
	Reload    int // steps until the next shot
	Dest      Vec2
	Route     []Vec2

	routeIdx int
	force    Vec2
}

// NewUnit creates an active unit at full health heading to dest
func NewUnit(id int, pos Vec2, faction Faction, dest Vec2) *Unit {
	return &Unit{
		ID:        id,
		Pos:       pos,
		Faction:   faction,
		Health:    UnitMaxHealth,
		MaxHealth: UnitMaxHealth,
		Radius:    UnitRadius,
		MaxSpeed:  UnitMaxSpeed,
		Active:    true,
		Reload:    1,
		Dest:      dest,
	}
}

// SetRoute replaces the waypoint list and rewinds the cursor
func (u *Unit) SetRoute(route []Vec2) {
	u.Route = route
	u.routeIdx = 0
}

// Push accumulates a separation nudge for the next move
func (u *Unit) Push(dir Vec2, magnitude float64) {
	u.force = u.force.Add(dir.Scale(magnitude))
}

// Force returns the accumulated push since the last move
func (u *Unit) Force() Vec2 {
	return u.force
}

// steer returns the unit direction toward the current waypoint, or toward
// the destination once the route is exhausted
func (u *Unit) steer() Vec2 {
	for u.routeIdx < len(u.Route) {
		wp := u.Route[u.routeIdx]
		if u.Pos.DistanceSq(wp) > WaypointReach*WaypointReach {
			return wp.Sub(u.Pos).Normalized()
		}
		u.routeIdx++
	}
	if u.Pos.DistanceSq(u.Dest) <= DestinationReach*DestinationReach {
		return Vec2{}
	}
	return u.Dest.Sub(u.Pos).Normalized()
}

// Tick moves the unit along its route plus any push, then counts down reload.
// dt is measured in reference frames.
func (u *Unit) Tick(dt float64) {
	if !u.Active {
		return
	}
	dir := u.steer()
	u.Heading = dir
	u.Pos = u.Pos.Add(dir.Add(u.force).Scale(u.MaxSpeed * 0.5 * dt))
	u.force = Vec2{}
	if u.Reload > 0 {
		u.Reload--
	}
}

// Reloaded reports whether the unit may fire this step
func (u *Unit) Reloaded() bool {
	return u.Active && u.Reload <= 0
}

// Hit applies damage and returns true on the lethal transition
func (u *Unit) Hit(damage int) bool {
	if !u.Active {
		return false
	}
	u.Health -= damage
	if u.Health <= 0 {
		u.Health = 0
		u.Active = false
		return true
	}
	return false
}
