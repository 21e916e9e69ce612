package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/invopop/jsonschema"
)

// ErrInvalidScenario is wrapped by every scenario validation failure
var ErrInvalidScenario = errors.New("invalid scenario")

// Upper bounds on what a scenario may ask the server to allocate
const (
	maxPlayfield       = 8192.0 // world units per side
	maxUnitsPerFaction = 8192
	maxZones           = 64 // beams and obstacles each
)

// Point is a JSON-friendly position
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Vec() Vec2 { return Vec2{p.X, p.Y} }

// FactionConfig describes how one side is spawned
type FactionConfig struct {
	Count       int     `json:"count" jsonschema:"minimum=0,maximum=8192,description=Number of units"`
	Origin      Point   `json:"origin" jsonschema:"description=Position of the first unit"`
	PerRow      int     `json:"perRow" jsonschema:"minimum=1,description=Units per spawn row"`
	Spacing     float64 `json:"spacing" jsonschema:"description=Distance between neighbouring spawn slots"`
	DestX       float64 `json:"destX" jsonschema:"description=X coordinate every unit of the faction advances to"`
	DestYOffset float64 `json:"destYOffset" jsonschema:"description=Added to the spawn y to get the destination y"`
}

// BoxConfig is an axis-aligned rectangle given by corner and size
type BoxConfig struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	W      float64 `json:"w"`
	H      float64 `json:"h"`
	Damage int     `json:"damage,omitempty" jsonschema:"description=Damage per step (beams only)"`
}

func (b BoxConfig) Rect() Rect {
	return NewRect(Vec2{b.X, b.Y}, Vec2{b.W, b.H})
}

// ScenarioConfig is the full description of a battle
type ScenarioConfig struct {
	Name             string        `json:"name" jsonschema:"title=Name,description=Label shown in battle listings"`
	Width            float64       `json:"width" jsonschema:"maximum=8192,description=Playfield width in world units"`
	Height           float64       `json:"height" jsonschema:"maximum=8192,description=Playfield height in world units"`
	MaxSteps         int           `json:"maxSteps" jsonschema:"minimum=0,description=Stop after this many steps (0 runs until one side is eliminated)"`
	TickRate         int           `json:"tickRate" jsonschema:"minimum=1,maximum=1000,description=Steps per second for live battles"`
	UnitHealth       int           `json:"unitHealth" jsonschema:"minimum=1"`
	UnitRadius       float64       `json:"unitRadius"`
	UnitSpeed        float64       `json:"unitSpeed"`
	ReloadTime       int           `json:"reloadTime" jsonschema:"minimum=1,description=Steps between shots"`
	ProjectileSpeed  float64       `json:"projectileSpeed"`
	ProjectileDamage int           `json:"projectileDamage" jsonschema:"minimum=0"`
	Planner          string        `json:"planner" jsonschema:"enum=tile,enum=direct,description=Route planner used on the first step"`
	Blue             FactionConfig `json:"blue"`
	Red              FactionConfig `json:"red"`
	Beams            []BoxConfig   `json:"beams,omitempty" jsonschema:"maxItems=64"`
	Obstacles        []BoxConfig   `json:"obstacles,omitempty" jsonschema:"maxItems=64,description=Impassable terrain for the tile planner"`
}

// DefaultScenario returns the reference battle: 2048 units a side
func DefaultScenario() ScenarioConfig {
	return ScenarioConfig{
		Name:             "reference",
		Width:            1280,
		Height:           720,
		MaxSteps:         2000,
		TickRate:         60,
		UnitHealth:       UnitMaxHealth,
		UnitRadius:       UnitRadius,
		UnitSpeed:        UnitMaxSpeed,
		ReloadTime:       ReloadTime,
		ProjectileSpeed:  ProjectileSpeed,
		ProjectileDamage: ProjectileDamage,
		Planner:          "tile",
		Blue: FactionConfig{
			Count:       2048,
			Origin:      Point{47, 39},
			PerRow:      24,
			Spacing:     7.5,
			DestX:       1100,
			DestYOffset: 16,
		},
		Red: FactionConfig{
			Count:       2048,
			Origin:      Point{1088, 39},
			PerRow:      24,
			Spacing:     7.5,
			DestX:       100,
			DestYOffset: 16,
		},
		Beams: []BoxConfig{
			{X: 590, Y: 327, W: 100, H: 50, Damage: BeamDamage},
			{X: 64, Y: 64, W: 100, H: 50, Damage: BeamDamage},
			{X: 1200, Y: 600, W: 100, H: 50, Damage: BeamDamage},
		},
	}
}

// Validate checks the scenario for values the simulation cannot run with
func (s *ScenarioConfig) Validate() error {
	switch {
	case s.Width <= 0 || s.Height <= 0:
		return fmt.Errorf("%w: playfield must have positive size, got %gx%g", ErrInvalidScenario, s.Width, s.Height)
	case s.Width > maxPlayfield || s.Height > maxPlayfield:
		return fmt.Errorf("%w: playfield may be at most %gx%g, got %gx%g", ErrInvalidScenario, maxPlayfield, maxPlayfield, s.Width, s.Height)
	case len(s.Beams) > maxZones:
		return fmt.Errorf("%w: at most %d beams, got %d", ErrInvalidScenario, maxZones, len(s.Beams))
	case len(s.Obstacles) > maxZones:
		return fmt.Errorf("%w: at most %d obstacles, got %d", ErrInvalidScenario, maxZones, len(s.Obstacles))
	case s.MaxSteps < 0:
		return fmt.Errorf("%w: maxSteps must not be negative", ErrInvalidScenario)
	case s.TickRate < 1 || s.TickRate > 1000:
		return fmt.Errorf("%w: tickRate must be in 1..1000, got %d", ErrInvalidScenario, s.TickRate)
	case s.UnitHealth < 1:
		return fmt.Errorf("%w: unitHealth must be positive", ErrInvalidScenario)
	case s.UnitRadius <= 0:
		return fmt.Errorf("%w: unitRadius must be positive", ErrInvalidScenario)
	case s.UnitSpeed < 0 || s.ProjectileSpeed < 0:
		return fmt.Errorf("%w: speeds must not be negative", ErrInvalidScenario)
	case s.ReloadTime < 1:
		return fmt.Errorf("%w: reloadTime must be at least 1", ErrInvalidScenario)
	case s.ProjectileDamage < 0:
		return fmt.Errorf("%w: projectileDamage must not be negative", ErrInvalidScenario)
	case s.Planner != "tile" && s.Planner != "direct":
		return fmt.Errorf("%w: unknown planner %q", ErrInvalidScenario, s.Planner)
	}
	for _, f := range []struct {
		name string
		cfg  FactionConfig
	}{{"blue", s.Blue}, {"red", s.Red}} {
		if f.cfg.Count < 0 || f.cfg.Count > maxUnitsPerFaction {
			return fmt.Errorf("%w: %s count must be in 0..%d, got %d", ErrInvalidScenario, f.name, maxUnitsPerFaction, f.cfg.Count)
		}
		if f.cfg.Count > 0 && (f.cfg.PerRow < 1 || f.cfg.Spacing <= 0) {
			return fmt.Errorf("%w: %s needs perRow >= 1 and positive spacing", ErrInvalidScenario, f.name)
		}
	}
	for i, b := range s.Beams {
		if b.W <= 0 || b.H <= 0 {
			return fmt.Errorf("%w: beam %d has no area", ErrInvalidScenario, i)
		}
	}
	for i, o := range s.Obstacles {
		if o.W <= 0 || o.H <= 0 {
			return fmt.Errorf("%w: obstacle %d has no area", ErrInvalidScenario, i)
		}
	}
	return nil
}

// ParseScenario overlays JSON onto the defaults and validates the result
func ParseScenario(data []byte) (ScenarioConfig, error) {
	return OverlayScenario(DefaultScenario(), data)
}

// OverlayScenario decodes JSON on top of base. Omitted fields keep base values;
// an empty document returns base unchanged after validation.
func OverlayScenario(base ScenarioConfig, data []byte) (ScenarioConfig, error) {
	cfg := base
	cfg.Beams = slices.Clone(base.Beams)
	cfg.Obstacles = slices.Clone(base.Obstacles)
	if len(bytes.TrimSpace(data)) == 0 {
		if err := cfg.Validate(); err != nil {
			return ScenarioConfig{}, err
		}
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return ScenarioConfig{}, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := cfg.Validate(); err != nil {
		return ScenarioConfig{}, err
	}
	return cfg, nil
}

// LoadScenario reads a scenario file. An empty path yields the defaults.
func LoadScenario(path string) (ScenarioConfig, error) {
	if path == "" {
		return DefaultScenario(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ScenarioConfig{}, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// NewPlanner builds the route planner the scenario asks for
func (s *ScenarioConfig) NewPlanner() RoutePlanner {
	if s.Planner == "direct" {
		return DirectPlanner{}
	}
	obstacles := make([]Rect, len(s.Obstacles))
	for i, o := range s.Obstacles {
		obstacles[i] = o.Rect()
	}
	return NewTilePlanner(obstacles, s.Width, s.Height)
}

// ScenarioSchema describes scenario files for editors and the HTTP API
func ScenarioSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(new(ScenarioConfig))
	schema.Title = "Forcefield Battle Scenario"
	schema.Description = "Spawn layout, unit stats and terrain for one battle; omitted fields take the reference defaults"
	return schema
}
