package main

import (
	"errors"
	"math"
	"slices"
	"testing"
)

// emptyScenario has no spawned units or beams and plans direct routes
func emptyScenario() ScenarioConfig {
	cfg := DefaultScenario()
	cfg.Blue.Count = 0
	cfg.Red.Count = 0
	cfg.Beams = nil
	cfg.Planner = "direct"
	return cfg
}

func newTestBattle(t *testing.T, cfg ScenarioConfig, planner RoutePlanner) *Battle {
	t.Helper()
	pool := NewWorkerPool(4)
	t.Cleanup(pool.Close)
	return NewBattle(cfg, pool, planner)
}

// stationary adds a unit whose destination is its own position
func stationary(b *Battle, pos Vec2, f Faction) *Unit {
	return b.AddUnit(pos, f, pos)
}

// staticProjectile builds a projectile with zero velocity at pos
func staticProjectile(pos Vec2, f Faction, damage int) *Projectile {
	return NewProjectile(0, &Unit{Pos: pos, Faction: f}, Vec2{}, 0, damage)
}

func TestEndToEndRocketHit(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	target := stationary(b, Vec2{400, 400}, Blue)
	shooter := stationary(b, Vec2{402, 400}, Red)
	b.AddProjectile(staticProjectile(shooter.Pos, Red, ProjectileDamage))

	rep, err := b.Step(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Health != 940 {
		t.Errorf("expected target health 940, got %d", target.Health)
	}
	if shooter.Health != UnitMaxHealth {
		t.Errorf("shooter should be untouched, got %d", shooter.Health)
	}
	if len(b.Explosions()) != 1 {
		t.Errorf("expected exactly one explosion, got %d", len(b.Explosions()))
	}
	if rep.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", rep.Hits)
	}
	if !rep.HullSkipped {
		t.Error("two units cannot form a hull")
	}
	// Both units fired on their first step; the seeded projectile is gone
	if len(b.Projectiles()) != 2 {
		t.Errorf("expected 2 new projectiles in flight, got %d", len(b.Projectiles()))
	}
}

func TestSeparationIncreasesDistance(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	a := stationary(b, Vec2{100, 100}, Blue)
	c := stationary(b, Vec2{103, 100}, Blue)
	before := math.Sqrt(a.Pos.DistanceSq(c.Pos))

	if _, err := b.Step(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := math.Sqrt(a.Pos.DistanceSq(c.Pos))
	if after <= before {
		t.Errorf("expected distance to grow from %.2f, got %.2f", before, after)
	}
	if math.Abs(after-4) > 1e-9 {
		t.Errorf("expected each unit to be pushed half a unit, distance %.3f", after)
	}
	if a.Force() != (Vec2{}) {
		t.Error("push force should be cleared after the move")
	}
}

func TestSeparationSkipsCoincidentUnits(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	a := stationary(b, Vec2{100, 100}, Blue)
	c := stationary(b, Vec2{100, 100}, Blue)
	if _, err := b.Step(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Pos != (Vec2{100, 100}) || c.Pos != (Vec2{100, 100}) {
		t.Errorf("coincident units should not be pushed, got %v and %v", a.Pos, c.Pos)
	}
}

func TestFindClosestEnemy(t *testing.T) {
	targets := []target{
		{pos: Vec2{10, 0}, faction: Red, active: true},
		{pos: Vec2{5, 0}, faction: Blue, active: true},  // friendly
		{pos: Vec2{3, 0}, faction: Red, active: false},  // dead
		{pos: Vec2{0, 10}, faction: Red, active: true},  // ties with index 0
		{pos: Vec2{0, -7}, faction: Red, active: true},  // unique minimum
	}
	if got := findClosestEnemy(targets, Vec2{}, Blue); got != 4 {
		t.Errorf("expected index 4, got %d", got)
	}

	// Unique minimum regardless of scan order
	reversed := slices.Clone(targets)
	slices.Reverse(reversed)
	if got := findClosestEnemy(reversed, Vec2{}, Blue); reversed[got].pos != (Vec2{0, -7}) {
		t.Errorf("expected the unique minimum after reversing, got %v", reversed[got].pos)
	}

	// Equal distances keep the earliest index
	tied := targets[:4]
	if got := findClosestEnemy(tied, Vec2{}, Blue); got != 0 {
		t.Errorf("expected earliest of tied enemies (0), got %d", got)
	}

	if got := findClosestEnemy(targets, Vec2{}, Red); got != 1 {
		t.Errorf("red should target the only blue unit, got %d", got)
	}
	if got := findClosestEnemy(targets[:1], Vec2{}, Red); got != -1 {
		t.Errorf("expected no enemy, got %d", got)
	}
}

func TestFireAtClosestEnemy(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	shooter := stationary(b, Vec2{100, 100}, Blue)
	stationary(b, Vec2{150, 100}, Red)
	stationary(b, Vec2{100, 130}, Red)

	rep, err := b.Step(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Fired != 3 {
		t.Errorf("expected every unit to fire on the first step, got %d", rep.Fired)
	}
	var shots []*Projectile
	for _, p := range b.Projectiles() {
		if p.Faction == Blue {
			shots = append(shots, p)
		}
	}
	if len(shots) != 1 {
		t.Fatalf("expected 1 blue projectile, got %d", len(shots))
	}
	if math.Abs(shots[0].Vel.X) > 1e-9 || math.Abs(shots[0].Vel.Y-ProjectileSpeed) > 1e-9 {
		t.Errorf("expected velocity (0,%g) toward the closer enemy, got %v", ProjectileSpeed, shots[0].Vel)
	}
	if shooter.Reload != ReloadTime {
		t.Errorf("expected reload reset to %d, got %d", ReloadTime, shooter.Reload)
	}
}

func TestNoEnemyNoShot(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	u := stationary(b, Vec2{100, 100}, Blue)
	stationary(b, Vec2{300, 300}, Blue)

	rep, err := b.Step(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Fired != 0 || len(b.Projectiles()) != 0 {
		t.Errorf("expected no shots without enemies, fired %d", rep.Fired)
	}
	if !u.Reloaded() {
		t.Error("reload timer should stay expired")
	}
}

func TestBeamDamage(t *testing.T) {
	cfg := emptyScenario()
	cfg.Beams = []BoxConfig{{X: 0, Y: 0, W: 100, H: 100, Damage: BeamDamage}}
	b := newTestBattle(t, cfg, nil)
	u := stationary(b, Vec2{50, 50}, Blue)
	outside := stationary(b, Vec2{300, 300}, Blue)

	if _, err := b.Step(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Health != UnitMaxHealth-BeamDamage {
		t.Errorf("expected %d health, got %d", UnitMaxHealth-BeamDamage, u.Health)
	}
	if outside.Health != UnitMaxHealth {
		t.Errorf("unit outside the beam should be untouched, got %d", outside.Health)
	}
	if b.Beams()[0].Phase != 1 {
		t.Errorf("expected beam phase 1, got %d", b.Beams()[0].Phase)
	}
}

func TestBeamKillLeavesWreckAndSmoke(t *testing.T) {
	cfg := emptyScenario()
	cfg.Beams = []BoxConfig{{X: 0, Y: 0, W: 100, H: 100, Damage: BeamDamage}}
	cfg.MaxSteps = 0
	b := newTestBattle(t, cfg, nil)
	u := stationary(b, Vec2{50, 50}, Blue)
	u.Health = BeamDamage
	stationary(b, Vec2{600, 300}, Red)

	rep, err := b.Step(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Kills != 1 || u.Active {
		t.Fatalf("expected the unit to die, kills=%d active=%v", rep.Kills, u.Active)
	}
	if len(b.Smokes()) != 1 {
		t.Errorf("expected 1 smoke, got %d", len(b.Smokes()))
	}
	if len(b.Wrecks()) != 1 || b.Wrecks()[0] != u {
		t.Error("dead unit should move to the wrecks")
	}
	if len(b.Units()) != 1 || b.Count(Blue) != 0 {
		t.Errorf("expected only the red unit left, got %d units", len(b.Units()))
	}
	done, winner := b.Outcome()
	if !done || winner != "red" {
		t.Errorf("expected red to win, got done=%v winner=%q", done, winner)
	}
}

func TestHullCullsEscapedProjectile(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	stationary(b, Vec2{100, 100}, Blue)
	stationary(b, Vec2{200, 100}, Blue)
	stationary(b, Vec2{150, 200}, Red)
	b.AddProjectile(staticProjectile(Vec2{500, 500}, Blue, ProjectileDamage))

	rep, err := b.Step(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.HullSkipped || rep.HullFallback {
		t.Fatalf("expected a real hull, skipped=%v fallback=%v", rep.HullSkipped, rep.HullFallback)
	}
	if rep.Culled != 1 {
		t.Errorf("expected 1 culled projectile, got %d", rep.Culled)
	}
	for _, p := range b.Projectiles() {
		if p.Pos == (Vec2{500, 500}) {
			t.Error("escaped projectile should have been pruned")
		}
	}
	found := false
	for _, e := range b.Explosions() {
		if e.Pos == (Vec2{500, 500}) {
			found = true
		}
	}
	if !found {
		t.Error("expected an explosion where the projectile was culled")
	}
	if len(b.Hull()) != 3 {
		t.Errorf("expected a triangular hull, got %v", b.Hull())
	}
}

func TestParallelCull(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	stationary(b, Vec2{100, 100}, Blue)
	stationary(b, Vec2{1100, 100}, Blue)
	stationary(b, Vec2{600, 600}, Red)
	for i := 0; i < 50; i++ {
		b.AddProjectile(staticProjectile(Vec2{600, 300}, Red, ProjectileDamage))
		b.AddProjectile(staticProjectile(Vec2{1200, 700}, Red, ProjectileDamage))
	}

	rep, err := b.Step(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Culled != 50 {
		t.Errorf("expected 50 culled projectiles, got %d", rep.Culled)
	}
	// 50 survivors plus the three fresh shots
	if len(b.Projectiles()) != 53 {
		t.Errorf("expected 53 projectiles, got %d", len(b.Projectiles()))
	}
}

type panickyPlanner struct{ badID int }

func (p panickyPlanner) Route(u *Unit, dest Vec2) []Vec2 {
	if u.ID == p.badID {
		panic("no route")
	}
	return []Vec2{dest}
}

func TestStepReportsFailedChunk(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), panickyPlanner{badID: 1})
	for i := 0; i < 8; i++ {
		b.AddUnit(Vec2{float64(100 + 20*i), 100}, Blue, Vec2{float64(100 + 20*i), 300})
	}

	rep, err := b.Step(1)
	var pe *TaskPanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected the planner panic to surface, got %v", err)
	}
	if rep.FailedChunks != 1 {
		t.Errorf("expected 1 failed chunk, got %d", rep.FailedChunks)
	}
	if b.StepCount() != 1 {
		t.Error("the step should still complete")
	}
	// Units outside the failed chunk got their route
	if len(b.Units()[7].Route) != 1 {
		t.Error("healthy chunks should keep their routes")
	}
}

func TestCombatFailureLeavesChunkUnmoved(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	// The first two units overlap, so separation pushes both
	first := stationary(b, Vec2{100, 100}, Blue)
	second := stationary(b, Vec2{103, 100}, Blue)
	for i := 0; i < 6; i++ {
		b.AddUnit(Vec2{float64(300 + 20*i), 300}, Blue, Vec2{float64(300 + 20*i), 600})
	}

	testHookProcessUnit = func(u *Unit) {
		if u.ID == first.ID {
			panic("combat fault")
		}
	}
	defer func() { testHookProcessUnit = nil }()

	rep, err := b.Step(1)
	var pe *TaskPanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected the combat panic to surface, got %v", err)
	}
	if rep.FailedChunks != 1 {
		t.Errorf("expected 1 failed chunk, got %d", rep.FailedChunks)
	}
	// 8 units on 4 workers: the failed chunk holds exactly the first two
	if first.Pos != (Vec2{100, 100}) || second.Pos != (Vec2{103, 100}) {
		t.Errorf("failed chunk moved: %v %v", first.Pos, second.Pos)
	}
	if first.Force() != (Vec2{}) || second.Force() != (Vec2{}) {
		t.Errorf("failed chunk kept its push: %v %v", first.Force(), second.Force())
	}
	if last := b.Units()[7]; last.Pos.Y <= 300 {
		t.Errorf("healthy chunk should have moved, got %v", last.Pos)
	}
}

func TestOutcomeMaxSteps(t *testing.T) {
	cfg := emptyScenario()
	cfg.MaxSteps = 2
	b := newTestBattle(t, cfg, nil)
	stationary(b, Vec2{100, 100}, Blue)
	stationary(b, Vec2{100, 120}, Blue)
	stationary(b, Vec2{1000, 600}, Red)

	for i := 0; i < 2; i++ {
		if done, _ := b.Outcome(); done {
			t.Fatalf("battle ended early at step %d", i)
		}
		if _, err := b.Step(1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	done, winner := b.Outcome()
	if !done || winner != "blue" {
		t.Errorf("expected blue to win on numbers, got done=%v winner=%q", done, winner)
	}
}

func TestSnapshotSortsHealth(t *testing.T) {
	b := newTestBattle(t, emptyScenario(), nil)
	for i, hp := range []int{700, 100, 400} {
		u := stationary(b, Vec2{float64(100 + 50*i), 100}, Blue)
		u.Health = hp
	}
	stationary(b, Vec2{900, 500}, Red).Health = 300

	s, err := b.Snapshot("sid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(s.BlueHealth, []int{100, 400, 700}) {
		t.Errorf("expected sorted blue health, got %v", s.BlueHealth)
	}
	if !slices.Equal(s.RedHealth, []int{300}) {
		t.Errorf("expected red health [300], got %v", s.RedHealth)
	}
	if len(s.Units) != 4 || s.SID != "sid" {
		t.Errorf("unexpected snapshot header: %d units sid=%q", len(s.Units), s.SID)
	}
}

func TestReferenceBattleFirstStep(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size battle")
	}
	b := newTestBattle(t, DefaultScenario(), nil)
	if len(b.Units()) != 4096 {
		t.Fatalf("expected 4096 units, got %d", len(b.Units()))
	}
	first := b.Units()[0].Pos
	if first != (Vec2{47, 39}) {
		t.Errorf("expected the first blue unit at (47,39), got %v", first)
	}
	rep, err := b.Step(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Fired != 4096 {
		t.Errorf("expected every unit to fire on step 0, got %d", rep.Fired)
	}
	if rep.HullSkipped {
		t.Error("expected a hull around 4096 units")
	}
	for _, u := range b.Units() {
		if u.Route == nil && u.Pos.DistanceSq(u.Dest) > 16*16 {
			t.Fatalf("unit %d has no route to a distant destination", u.ID)
		}
	}
}
