package main

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// StepReport summarizes one call to Battle.Step
type StepReport struct {
	Step         int           `json:"step"`
	Blue         int           `json:"blue"` // active units left
	Red          int           `json:"red"`
	Projectiles  int           `json:"projectiles"`
	Fired        int           `json:"fired"`
	Hits         int           `json:"hits"`
	Kills        int           `json:"kills"`
	Culled       int           `json:"culled"`
	HullFallback bool          `json:"hullFallback"` // hull failed the convexity guard
	HullSkipped  bool          `json:"hullSkipped"`  // fewer than 3 usable points; previous hull kept
	FailedChunks int           `json:"failedChunks"`
	Duration     time.Duration `json:"ns"`
}

// Battle owns every entity of one simulation. It is not safe for concurrent
// use; the driver serializes Step and all reads.
type Battle struct {
	cfg     ScenarioConfig
	pool    *WorkerPool
	planner RoutePlanner
	grid    *SpatialGrid

	units       []*Unit
	wrecks      []*Unit
	projectiles []*Projectile
	explosions  []*Explosion
	smokes      []*Smoke
	beams       []*Beam
	hull        []Vec2

	step       int
	nextUnitID int
	nextProjID int
	counts     [2]int // active units per faction

	targets []target
	outputs []chunkOutput
}

// NewBattle spawns the scenario's units and beams. A nil planner uses the
// one the scenario names.
func NewBattle(cfg ScenarioConfig, pool *WorkerPool, planner RoutePlanner) *Battle {
	if planner == nil {
		planner = cfg.NewPlanner()
	}
	b := &Battle{
		cfg:     cfg,
		pool:    pool,
		planner: planner,
		grid:    NewSpatialGrid(cfg.Width, cfg.Height),
		units:   make([]*Unit, 0, cfg.Blue.Count+cfg.Red.Count),
	}
	b.spawnFaction(Blue, cfg.Blue)
	b.spawnFaction(Red, cfg.Red)
	for _, bc := range cfg.Beams {
		b.beams = append(b.beams, NewBeam(Vec2{bc.X, bc.Y}, Vec2{bc.W, bc.H}, bc.Damage))
	}
	return b
}

func (b *Battle) spawnFaction(f Faction, fc FactionConfig) {
	for i := 0; i < fc.Count; i++ {
		pos := fc.Origin.Vec().Add(Vec2{
			X: float64(i%fc.PerRow) * fc.Spacing,
			Y: float64(i/fc.PerRow) * fc.Spacing,
		})
		b.AddUnit(pos, f, Vec2{fc.DestX, pos.Y + fc.DestYOffset})
	}
}

// AddUnit places a unit with the scenario's stats. Only valid before the
// first step or between steps.
func (b *Battle) AddUnit(pos Vec2, f Faction, dest Vec2) *Unit {
	u := NewUnit(b.nextUnitID, pos, f, dest)
	u.Health = b.cfg.UnitHealth
	u.MaxHealth = b.cfg.UnitHealth
	u.Radius = b.cfg.UnitRadius
	u.MaxSpeed = b.cfg.UnitSpeed
	b.nextUnitID++
	b.units = append(b.units, u)
	b.counts[f]++
	return u
}

// AddProjectile puts a projectile in flight and assigns its id
func (b *Battle) AddProjectile(p *Projectile) {
	p.ID = b.nextProjID
	b.nextProjID++
	b.projectiles = append(b.projectiles, p)
}

// Read-only views for renderers and snapshots. Callers must not modify them.

func (b *Battle) Units() []*Unit             { return b.units }
func (b *Battle) Wrecks() []*Unit            { return b.wrecks }
func (b *Battle) Projectiles() []*Projectile { return b.projectiles }
func (b *Battle) Explosions() []*Explosion   { return b.explosions }
func (b *Battle) Smokes() []*Smoke           { return b.smokes }
func (b *Battle) Beams() []*Beam             { return b.beams }
func (b *Battle) Hull() []Vec2               { return b.hull }

// StepCount returns the number of completed steps
func (b *Battle) StepCount() int { return b.step }

// Count returns the active units of faction f
func (b *Battle) Count(f Faction) int { return b.counts[f] }

// Config returns the scenario the battle was built from
func (b *Battle) Config() ScenarioConfig { return b.cfg }

// Outcome reports whether the battle is over and who won. A battle ends when
// a side is wiped out or MaxSteps is reached; the larger side then wins.
func (b *Battle) Outcome() (done bool, winner string) {
	blue, red := b.counts[Blue], b.counts[Red]
	maxed := b.cfg.MaxSteps > 0 && b.step >= b.cfg.MaxSteps
	if blue > 0 && red > 0 && !maxed {
		return false, ""
	}
	switch {
	case blue > red:
		return true, Blue.String()
	case red > blue:
		return true, Red.String()
	default:
		return true, "draw"
	}
}

// Step advances the simulation once. dt is measured in reference frames
// (1 = one frame of the reference battle); values <= 0 count as 1.
// Chunk failures do not abort the step: the failed chunks' results are
// discarded, the rest of the step completes and the joined error is returned.
func (b *Battle) Step(dt float64) (StepReport, error) {
	start := time.Now()
	if dt <= 0 {
		dt = 1
	}
	rep := StepReport{Step: b.step}
	var errs []error

	if b.step == 0 {
		if err := b.planRoutes(); err != nil {
			rep.FailedChunks += len(failedChunks(err))
			errs = append(errs, fmt.Errorf("plan routes: %w", err))
		}
	}

	b.rebuildGrid()

	if err := b.separation(); err != nil {
		rep.FailedChunks += len(failedChunks(err))
		errs = append(errs, fmt.Errorf("separation: %w", err))
	}

	for i, p := range b.projectiles {
		if !p.Active() {
			continue
		}
		old := p.Update(dt)
		b.grid.Relocate(EntityRef{Kind: KindProjectile, Idx: i}, old, p.Pos)
	}

	b.targets = snapshotTargets(b.units, b.targets)
	if err := b.combat(dt, &rep); err != nil {
		rep.FailedChunks += len(failedChunks(err))
		errs = append(errs, fmt.Errorf("combat: %w", err))
	}

	b.pruneUnits()

	points := make([]Vec2, len(b.units))
	for i, u := range b.units {
		points[i] = u.Pos
	}
	hull, fallback, ok := ForcefieldHull(points, b.cfg.Width, b.cfg.Height)
	if ok {
		b.hull = hull
		rep.HullFallback = fallback
		culled, err := b.cull(hull)
		rep.Culled = culled
		if err != nil {
			rep.FailedChunks += len(failedChunks(err))
			errs = append(errs, fmt.Errorf("cull: %w", err))
		}
	} else {
		rep.HullSkipped = true
	}

	b.pruneProjectiles()
	b.tickEffects()

	b.step++
	rep.Blue = b.counts[Blue]
	rep.Red = b.counts[Red]
	rep.Projectiles = len(b.projectiles)
	rep.Duration = time.Since(start)
	return rep, errors.Join(errs...)
}

func (b *Battle) planRoutes() error {
	return b.pool.RunChunks(len(b.units), func(c Chunk) error {
		for _, u := range b.units[c.Start:c.End] {
			u.SetRoute(b.planner.Route(u, u.Dest))
		}
		return nil
	})
}

func (b *Battle) rebuildGrid() {
	b.grid.Clear()
	for i, u := range b.units {
		b.grid.Insert(EntityRef{Kind: KindUnit, Idx: i}, u.Pos)
	}
	for i, p := range b.projectiles {
		b.grid.Insert(EntityRef{Kind: KindProjectile, Idx: i}, p.Pos)
	}
}

// separation is phase 1. A failed chunk's units lose their partial push.
func (b *Battle) separation() error {
	err := b.pool.RunChunks(len(b.units), func(c Chunk) error {
		buf := make([]EntityRef, 0, 32)
		for i := c.Start; i < c.End; i++ {
			buf = b.separate(i, buf)
		}
		return nil
	})
	for _, c := range failedChunks(err) {
		for _, u := range b.units[c.Start:c.End] {
			u.force = Vec2{}
		}
	}
	return err
}

func (b *Battle) chunkOutputs() []chunkOutput {
	if len(b.outputs) != b.pool.Size() {
		b.outputs = make([]chunkOutput, b.pool.Size())
	}
	for i := range b.outputs {
		b.outputs[i].reset()
	}
	return b.outputs
}

// combat is phase 2. Each chunk works on staged copies of its units and is
// committed only if it finished. A failed chunk's units also lose their push.
func (b *Battle) combat(dt float64, rep *StepReport) error {
	outputs := b.chunkOutputs()
	err := b.pool.RunChunks(len(b.units), func(c Chunk) error {
		out := &outputs[c.Index]
		out.start = c.Start
		buf := make([]EntityRef, 0, 32)
		for i := c.Start; i < c.End; i++ {
			u := *b.units[i]
			buf = b.processUnit(&u, b.targets, dt, out, buf)
			out.units = append(out.units, u)
		}
		out.ok = true
		return nil
	})

	for ci := range outputs {
		out := &outputs[ci]
		if !out.ok {
			out.rollback()
			continue
		}
		for j := range out.units {
			idx := out.start + j
			u := b.units[idx]
			old := u.Pos
			*u = out.units[j]
			b.grid.Relocate(EntityRef{Kind: KindUnit, Idx: idx}, old, u.Pos)
		}
		for _, p := range out.projectiles {
			b.AddProjectile(p)
		}
		b.explosions = append(b.explosions, out.explosions...)
		b.smokes = append(b.smokes, out.smokes...)
		rep.Fired += out.fired
		rep.Hits += out.hits
		rep.Kills += out.kills
	}
	// Uncommitted units never moved, so their push must not carry over
	for _, c := range failedChunks(err) {
		for _, u := range b.units[c.Start:c.End] {
			u.force = Vec2{}
		}
	}
	return err
}

// pruneUnits moves dead units to the wrecks. Grid indices are invalid
// afterwards, so the grid is emptied until the next rebuild.
func (b *Battle) pruneUnits() {
	alive := b.units[:0]
	for _, u := range b.units {
		if u.Active {
			alive = append(alive, u)
			continue
		}
		b.wrecks = append(b.wrecks, u)
		b.counts[u.Faction]--
	}
	clear(b.units[len(alive):])
	b.units = alive
	b.grid.Clear()
}

// cull is phase 3: projectiles outside the hull explode. Small batches run
// on the calling goroutine.
func (b *Battle) cull(hull []Vec2) (int, error) {
	n := len(b.projectiles)
	if n < 10*b.pool.Size() {
		outputs := b.chunkOutputs()
		b.cullRange(hull, 0, n, &outputs[0])
		b.explosions = append(b.explosions, outputs[0].explosions...)
		return len(outputs[0].explosions), nil
	}

	outputs := b.chunkOutputs()
	err := b.pool.RunChunks(n, func(c Chunk) error {
		out := &outputs[c.Index]
		b.cullRange(hull, c.Start, c.End, out)
		out.ok = true
		return nil
	})
	culled := 0
	for ci := range outputs {
		out := &outputs[ci]
		if !out.ok {
			out.rollback()
			continue
		}
		b.explosions = append(b.explosions, out.explosions...)
		culled += len(out.explosions)
	}
	return culled, err
}

func (b *Battle) pruneProjectiles() {
	live := b.projectiles[:0]
	for _, p := range b.projectiles {
		if p.Active() {
			live = append(live, p)
		}
	}
	clear(b.projectiles[len(live):])
	b.projectiles = live
}

func (b *Battle) tickEffects() {
	live := b.explosions[:0]
	for _, e := range b.explosions {
		e.Tick()
		if !e.Done() {
			live = append(live, e)
		}
	}
	clear(b.explosions[len(live):])
	b.explosions = live

	for _, beam := range b.beams {
		beam.Tick()
	}
	for _, s := range b.smokes {
		s.Tick()
	}
}

// failedChunks lists the chunks reported in a RunChunks error
func failedChunks(err error) []Chunk {
	if err == nil {
		return nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	var chunks []Chunk
	for _, e := range errs {
		var ce *ChunkError
		if errors.As(e, &ce) {
			chunks = append(chunks, ce.Chunk)
		}
	}
	return chunks
}

// Snapshot builds the wire view of the battle. Per-faction health lists are
// sorted on the pool in parallel.
func (b *Battle) Snapshot(sid string) (BattleSnapshot, error) {
	s := BattleSnapshot{
		SID:         sid,
		Step:        b.step,
		Width:       b.cfg.Width,
		Height:      b.cfg.Height,
		Units:       make([]UnitState, 0, len(b.units)),
		Wrecks:      make([]UnitState, 0, len(b.wrecks)),
		Projectiles: make([]ProjectileState, 0, len(b.projectiles)),
		Explosions:  make([]EffectState, 0, len(b.explosions)),
		Smokes:      make([]EffectState, 0, len(b.smokes)),
		Beams:       make([]BeamState, 0, len(b.beams)),
		Hull:        make([]PointState, 0, len(b.hull)),
	}
	blue := make([]int, 0, b.counts[Blue])
	red := make([]int, 0, b.counts[Red])
	for _, u := range b.units {
		s.Units = append(s.Units, unitState(u))
		if u.Faction == Blue {
			blue = append(blue, u.Health)
		} else {
			red = append(red, u.Health)
		}
	}
	sorts := []*Handle{
		b.pool.Submit(func() error { slices.Sort(blue); return nil }),
		b.pool.Submit(func() error { slices.Sort(red); return nil }),
	}

	for _, u := range b.wrecks {
		s.Wrecks = append(s.Wrecks, unitState(u))
	}
	for _, p := range b.projectiles {
		s.Projectiles = append(s.Projectiles, ProjectileState{
			ID: p.ID, X: round1(p.Pos.X), Y: round1(p.Pos.Y), F: uint8(p.Faction),
		})
	}
	for _, e := range b.explosions {
		s.Explosions = append(s.Explosions, EffectState{X: round1(e.Pos.X), Y: round1(e.Pos.Y), Frame: e.Frame})
	}
	for _, sm := range b.smokes {
		s.Smokes = append(s.Smokes, EffectState{X: round1(sm.Pos.X), Y: round1(sm.Pos.Y), Frame: sm.Frame})
	}
	for _, beam := range b.beams {
		s.Beams = append(s.Beams, BeamState{
			X: beam.Rect.Min.X, Y: beam.Rect.Min.Y,
			W: beam.Rect.Max.X - beam.Rect.Min.X, H: beam.Rect.Max.Y - beam.Rect.Min.Y,
			Phase: beam.Phase,
		})
	}
	for _, p := range b.hull {
		s.Hull = append(s.Hull, PointState{X: round1(p.X), Y: round1(p.Y)})
	}

	if err := JoinAll(sorts); err != nil {
		return s, fmt.Errorf("sort health: %w", err)
	}
	s.BlueHealth = blue
	s.RedHealth = red
	return s, nil
}

func unitState(u *Unit) UnitState {
	return UnitState{ID: u.ID, X: round1(u.Pos.X), Y: round1(u.Pos.Y), F: uint8(u.Faction), HP: u.Health}
}
