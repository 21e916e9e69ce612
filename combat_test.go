package main

import "testing"

func TestProcessUnitClaimsProjectileOnce(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	a := stationary(b, Vec2{200, 200}, Blue)
	c := stationary(b, Vec2{206, 200}, Blue)
	b.AddProjectile(staticProjectile(Vec2{203, 200}, Red, ProjectileDamage))
	b.rebuildGrid()
	targets := snapshotTargets(b.Units(), nil)

	var out chunkOutput
	ua, uc := *a, *c
	b.processUnit(&ua, targets, 1, &out, nil)
	b.processUnit(&uc, targets, 1, &out, nil)

	if out.hits != 1 {
		t.Fatalf("expected a single hit from one projectile, got %d", out.hits)
	}
	if ua.Health+uc.Health != 2*UnitMaxHealth-ProjectileDamage {
		t.Errorf("expected damage applied once, got %d and %d", ua.Health, uc.Health)
	}
	if a.Health != UnitMaxHealth || c.Health != UnitMaxHealth {
		t.Error("staged copies must not touch the live units")
	}
	if len(out.claimed) != 1 || b.Projectiles()[0].Active() {
		t.Error("the projectile should be claimed")
	}
}

func TestChunkRollbackRestoresProjectiles(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	u := stationary(b, Vec2{300, 300}, Blue)
	b.AddProjectile(staticProjectile(u.Pos, Red, ProjectileDamage))
	b.rebuildGrid()

	var out chunkOutput
	staged := *u
	b.processUnit(&staged, snapshotTargets(b.Units(), nil), 1, &out, nil)
	if b.Projectiles()[0].Active() {
		t.Fatal("projectile should be claimed by the hit")
	}

	out.rollback()
	if !b.Projectiles()[0].Active() {
		t.Error("rollback should re-arm the claimed projectile")
	}

	out.reset()
	if out.ok || len(out.claimed) != 0 || out.hits != 0 {
		t.Errorf("reset should clear the output, got %+v", out)
	}
}

func TestProcessUnitIgnoresFriendlyFire(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	u := stationary(b, Vec2{300, 300}, Blue)
	b.AddProjectile(staticProjectile(u.Pos, Blue, ProjectileDamage))
	b.rebuildGrid()

	var out chunkOutput
	staged := *u
	b.processUnit(&staged, snapshotTargets(b.Units(), nil), 1, &out, nil)
	if out.hits != 0 || staged.Health != UnitMaxHealth {
		t.Error("a unit must not be hit by its own faction's projectile")
	}
}

func TestKillStopsFurtherHits(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	u := stationary(b, Vec2{300, 300}, Blue)
	u.Health = ProjectileDamage
	b.AddProjectile(staticProjectile(u.Pos, Red, ProjectileDamage))
	b.AddProjectile(staticProjectile(u.Pos, Red, ProjectileDamage))
	b.rebuildGrid()

	var out chunkOutput
	staged := *u
	b.processUnit(&staged, snapshotTargets(b.Units(), nil), 1, &out, nil)
	if out.kills != 1 || out.hits != 1 {
		t.Errorf("expected one lethal hit, got hits=%d kills=%d", out.hits, out.kills)
	}
	if len(out.smokes) != 1 {
		t.Fatalf("expected a smoke for the kill, got %d", len(out.smokes))
	}
	if want := staged.Pos.Sub(rocketSmokeOffset); out.smokes[0].Pos != want {
		t.Errorf("expected smoke at %v, got %v", want, out.smokes[0].Pos)
	}
	active := 0
	for _, p := range b.Projectiles() {
		if p.Active() {
			active++
		}
	}
	if active != 1 {
		t.Errorf("second projectile should stay in flight, %d active", active)
	}
}

func TestCullRange(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	square := []Vec2{{0, 0}, {100, 0}, {100, 100}, {0, 100}}
	b.AddProjectile(staticProjectile(Vec2{50, 50}, Blue, 1))
	b.AddProjectile(staticProjectile(Vec2{150, 50}, Red, 1))
	b.AddProjectile(staticProjectile(Vec2{100, 50}, Red, 1))

	var out chunkOutput
	b.cullRange(mustHull(t, square), 0, 3, &out)
	if len(out.explosions) != 1 {
		t.Fatalf("expected one culled projectile, got %d", len(out.explosions))
	}
	if out.explosions[0].Pos != (Vec2{150, 50}) {
		t.Errorf("wrong projectile culled: %v", out.explosions[0].Pos)
	}
	if !b.Projectiles()[0].Active() || !b.Projectiles()[2].Active() {
		t.Error("projectiles inside or on the hull must survive")
	}
}

func mustHull(t *testing.T, points []Vec2) []Vec2 {
	t.Helper()
	hull, ok := BuildHull(points)
	if !ok {
		t.Fatalf("no hull for %v", points)
	}
	return hull
}
