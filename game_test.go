package main

import (
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// mockBroadcaster captures sent messages for testing
type mockBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
	binary   [][]byte
}

func (m *mockBroadcaster) SendJSON(msg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockBroadcaster) SendBinary(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binary = append(m.binary, data)
}

func (m *mockBroadcaster) snapshots(t *testing.T) []BattleSnapshot {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BattleSnapshot, 0, len(m.binary))
	for _, data := range m.binary {
		var s BattleSnapshot
		if err := msgpack.Unmarshal(data, &s); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		out = append(out, s)
	}
	return out
}

func (m *mockBroadcaster) envelopes() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Envelope
	for _, msg := range m.messages {
		if env, ok := msg.(Envelope); ok {
			out = append(out, env)
		}
	}
	return out
}

// smallScenario is a fast battle: four units a side, far apart
func smallScenario() ScenarioConfig {
	cfg := DefaultScenario()
	cfg.Name = "small"
	cfg.Blue.Count = 4
	cfg.Red.Count = 4
	cfg.Beams = nil
	cfg.Planner = "direct"
	cfg.TickRate = 1000
	cfg.MaxSteps = 6
	return cfg
}

func newTestGame(t *testing.T, cfg ScenarioConfig, onEnd func(BattleResult)) *Game {
	t.Helper()
	pool := NewWorkerPool(2)
	t.Cleanup(pool.Close)
	return NewGame("test-battle", "Test", "op", NewBattle(cfg, pool, nil), onEnd)
}

func waitFinished(t *testing.T, g *Game) {
	t.Helper()
	select {
	case <-g.Finished():
	case <-time.After(5 * time.Second):
		t.Fatal("game did not finish")
	}
}

func TestGameRunsToMaxSteps(t *testing.T) {
	results := make(chan BattleResult, 2)
	g := newTestGame(t, smallScenario(), func(r BattleResult) { results <- r })
	go g.Run()
	waitFinished(t, g)

	var res BattleResult
	select {
	case res = <-results:
	default:
		t.Fatal("onEnd was not called")
	}
	if res.Steps != 6 {
		t.Errorf("expected 6 steps, got %d", res.Steps)
	}
	if res.Winner != "draw" || res.Blue != 4 || res.Red != 4 {
		t.Errorf("expected an untouched draw, got %+v", res)
	}
	if len(results) != 0 {
		t.Error("onEnd should run exactly once")
	}
	if g.Result() == nil || g.Result().SID != "test-battle" {
		t.Errorf("unexpected stored result: %+v", g.Result())
	}

	// The last report belongs to the sixth step, numbered from zero
	d := g.Detail()
	if d.Report.Step != 5 || d.Report.Blue != 4 || d.Report.Red != 4 {
		t.Errorf("unexpected last report: %+v", d.Report)
	}
	if d.ID != "test-battle" || d.Step != 6 {
		t.Errorf("unexpected detail info: %+v", d.SessionInfo)
	}
}

func TestGameSpectatorReceivesSnapshots(t *testing.T) {
	g := newTestGame(t, smallScenario(), nil)
	mock := &mockBroadcaster{}
	if id := g.AddSpectator(mock); id == "" {
		t.Fatal("spectator rejected")
	}

	snaps := mock.snapshots(t)
	if len(snaps) != 1 {
		t.Fatalf("expected an immediate snapshot on subscribe, got %d", len(snaps))
	}
	if snaps[0].SID != "test-battle" || snaps[0].Step != 0 || len(snaps[0].Units) != 8 {
		t.Errorf("unexpected first snapshot: sid=%s step=%d units=%d", snaps[0].SID, snaps[0].Step, len(snaps[0].Units))
	}
	if len(snaps[0].BlueHealth) != 4 || len(snaps[0].RedHealth) != 4 {
		t.Error("expected per-faction health lists")
	}

	go g.Run()
	waitFinished(t, g)

	// one on subscribe plus every BroadcastEvery steps up to 6
	if got := len(mock.snapshots(t)); got != 1+6/BroadcastEvery {
		t.Errorf("expected %d snapshots, got %d", 1+6/BroadcastEvery, got)
	}
	envs := mock.envelopes()
	if len(envs) != 1 || envs[0].T != MsgEnded {
		t.Fatalf("expected a single ended message, got %+v", envs)
	}
	ended, ok := envs[0].Data.(EndedMsg)
	if !ok {
		t.Fatalf("expected EndedMsg, got %T", envs[0].Data)
	}
	if ended.Winner != "draw" || ended.Steps != 6 {
		t.Errorf("unexpected ended message: %+v", ended)
	}
}

func TestGameStop(t *testing.T) {
	cfg := smallScenario()
	cfg.MaxSteps = 0
	cfg.TickRate = 20
	g := newTestGame(t, cfg, nil)
	go g.Run()

	g.Stop()
	g.Stop()
	waitFinished(t, g)

	res := g.Result()
	if res == nil || res.Winner != "stopped" {
		t.Errorf("expected a stopped result, got %+v", res)
	}
}

func TestGameSpectatorBookkeeping(t *testing.T) {
	g := newTestGame(t, smallScenario(), nil)
	now := time.Now().Add(time.Minute)
	if g.IdleFor(now) <= 0 {
		t.Error("a battle without spectators should count as idle")
	}

	a := g.AddSpectator(&mockBroadcaster{})
	b := g.AddSpectator(&mockBroadcaster{})
	if a == b {
		t.Fatal("spectator ids must be unique")
	}
	if g.SpectatorCount() != 2 || g.IdleFor(now) != 0 {
		t.Errorf("expected 2 spectators and no idle time, got %d", g.SpectatorCount())
	}
	if info := g.Info(); info.Spectators != 2 || info.Blue != 4 || info.Red != 4 || info.Operator != "op" {
		t.Errorf("unexpected info: %+v", info)
	}

	g.RemoveSpectator(a)
	g.RemoveSpectator(a)
	g.RemoveSpectator(b)
	if g.SpectatorCount() != 0 {
		t.Errorf("expected no spectators, got %d", g.SpectatorCount())
	}
	if g.IdleFor(time.Now().Add(time.Second)) <= 0 {
		t.Error("idle time should restart when the last spectator leaves")
	}
}

func TestGameSpectatorLimit(t *testing.T) {
	g := newTestGame(t, smallScenario(), nil)
	for i := 0; i < maxSpectatorsPerBattle; i++ {
		if g.AddSpectator(&mockBroadcaster{}) == "" {
			t.Fatalf("spectator %d rejected below the limit", i)
		}
	}
	if g.AddSpectator(&mockBroadcaster{}) != "" {
		t.Error("expected the battle to be full")
	}
}
