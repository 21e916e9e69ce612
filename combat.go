package main

// target is the frozen view of a unit used for aiming during one step
type target struct {
	pos     Vec2
	faction Faction
	active  bool
}

// snapshotTargets copies the aiming view of every unit into buf
func snapshotTargets(units []*Unit, buf []target) []target {
	buf = buf[:0]
	for _, u := range units {
		buf = append(buf, target{pos: u.Pos, faction: u.Faction, active: u.Active})
	}
	return buf
}

// findClosestEnemy scans targets for the nearest active unit not of faction.
// Ties keep the earliest index. Returns -1 when no enemy is left.
func findClosestEnemy(targets []target, pos Vec2, faction Faction) int {
	best := -1
	bestDist := 0.0
	for i, t := range targets {
		if !t.active || t.faction == faction {
			continue
		}
		d := t.pos.DistanceSq(pos)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// separate accumulates a push on unit i away from every overlapping active
// neighbour. Only unit i is written.
func (b *Battle) separate(i int, buf []EntityRef) []EntityRef {
	u := b.units[i]
	buf = b.grid.QueryNeighbors(u.Pos, buf[:0])
	for _, ref := range buf {
		if ref.Kind != KindUnit || ref.Idx == i {
			continue
		}
		other := b.units[ref.Idx]
		if !other.Active {
			continue
		}
		dir := u.Pos.Sub(other.Pos)
		radSum := u.Radius + other.Radius
		if dir.SqrLength() >= radSum*radSum {
			continue
		}
		if dir.SqrLength() == 0 {
			continue
		}
		u.Push(dir.Normalized(), 1.0)
	}
	return buf
}

// chunkOutput collects everything one phase task produces. Nothing in it is
// visible to the battle until the chunk finished and the phase joined.
type chunkOutput struct {
	ok          bool
	start       int    // index of the chunk's first unit
	units       []Unit // staged copies of the chunk's units
	claimed     []*Projectile
	projectiles []*Projectile
	explosions  []*Explosion
	smokes      []*Smoke
	fired       int
	hits        int
	kills       int
}

func (o *chunkOutput) reset() {
	*o = chunkOutput{
		units:       o.units[:0],
		claimed:     o.claimed[:0],
		projectiles: o.projectiles[:0],
		explosions:  o.explosions[:0],
		smokes:      o.smokes[:0],
	}
}

// rollback re-arms projectiles claimed by a chunk that did not finish
func (o *chunkOutput) rollback() {
	for _, p := range o.claimed {
		p.restore()
	}
}

// testHookProcessUnit, if set, runs on every staged unit right after it moved
var testHookProcessUnit func(*Unit)

// processUnit runs move, fire and damage for one staged unit copy
func (b *Battle) processUnit(u *Unit, targets []target, dt float64, out *chunkOutput, buf []EntityRef) []EntityRef {
	u.Tick(dt)
	if testHookProcessUnit != nil {
		testHookProcessUnit(u)
	}

	if u.Reloaded() {
		if t := findClosestEnemy(targets, u.Pos, u.Faction); t >= 0 {
			out.projectiles = append(out.projectiles,
				NewProjectile(0, u, targets[t].pos, b.cfg.ProjectileSpeed, b.cfg.ProjectileDamage))
			out.fired++
			u.Reload = b.cfg.ReloadTime
		}
	}

	buf = b.grid.QueryNeighbors(u.Pos, buf[:0])
	for _, ref := range buf {
		if ref.Kind != KindProjectile {
			continue
		}
		p := b.projectiles[ref.Idx]
		if p.Faction == u.Faction || !p.Active() || !p.Intersects(u.Pos, u.Radius) {
			continue
		}
		if !p.Claim() {
			continue
		}
		out.claimed = append(out.claimed, p)
		out.explosions = append(out.explosions, &Explosion{Pos: u.Pos})
		out.hits++
		if u.Hit(p.Damage) {
			out.smokes = append(out.smokes, &Smoke{Pos: u.Pos.Sub(rocketSmokeOffset)})
			out.kills++
			break
		}
	}

	if !u.Active {
		return buf
	}
	for _, beam := range b.beams {
		if !beam.Touches(u) {
			continue
		}
		if u.Hit(beam.Damage) {
			out.smokes = append(out.smokes, &Smoke{Pos: u.Pos.Sub(beamSmokeOffset)})
			out.kills++
			break
		}
	}
	return buf
}

// cullRange deactivates every projectile in [start,end) outside the hull
func (b *Battle) cullRange(hull []Vec2, start, end int, out *chunkOutput) {
	for _, p := range b.projectiles[start:end] {
		if !p.Active() || !OutsideHull(hull, p.Pos) {
			continue
		}
		if p.Claim() {
			out.claimed = append(out.claimed, p)
			out.explosions = append(out.explosions, &Explosion{Pos: p.Pos})
		}
	}
}
