package main

import (
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	BroadcastEvery         = 2 // steps between spectator snapshots
	maxSpectatorsPerBattle = 200
)

// Broadcaster interface for sending messages to spectators
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// BattleResult is what gets recorded once a battle finishes
type BattleResult struct {
	SID      string
	Name     string
	Operator string
	Winner   string // "blue", "red", "draw" or "stopped"
	Steps    int
	Blue     int
	Red      int
	Duration time.Duration
}

// Game drives one battle in real time and streams it to spectators
type Game struct {
	mu         sync.RWMutex
	id         string
	name       string
	operator   string
	battle     *Battle
	spectators map[string]Broadcaster
	emptySince time.Time
	started    time.Time
	lastReport StepReport
	result     *BattleResult
	onEnd      func(BattleResult)

	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

// NewGame wraps a battle. onEnd, if set, runs once after the battle ends.
func NewGame(id, name, operator string, battle *Battle, onEnd func(BattleResult)) *Game {
	return &Game{
		id:         id,
		name:       name,
		operator:   operator,
		battle:     battle,
		spectators: make(map[string]Broadcaster),
		emptySince: time.Now(),
		onEnd:      onEnd,
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// Run starts the game loop and returns once the battle is over or stopped
func (g *Game) Run() {
	defer close(g.finished)

	g.mu.Lock()
	g.started = time.Now()
	rate := g.battle.Config().TickRate
	g.mu.Unlock()
	log.Printf("battle %s: started %q by %s", g.id, g.name, g.operator)

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if done, winner := g.update(); done {
				g.end(winner)
				return
			}
		case <-g.stop:
			g.end("stopped")
			return
		}
	}
}

// Stop ends the battle early. Safe to call more than once.
func (g *Game) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Finished is closed when Run has returned
func (g *Game) Finished() <-chan struct{} {
	return g.finished
}

// update runs one battle step and broadcasts state every BroadcastEvery steps
func (g *Game) update() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rep, err := g.battle.Step(1)
	g.lastReport = rep
	if err != nil {
		log.Printf("battle %s: step %d: %v", g.id, rep.Step, err)
	}
	done, winner := g.battle.Outcome()
	if done || g.battle.StepCount()%BroadcastEvery == 0 {
		g.broadcastState()
	}
	return done, winner
}

// end records the result and notifies spectators
func (g *Game) end(winner string) {
	g.mu.Lock()
	res := BattleResult{
		SID:      g.id,
		Name:     g.name,
		Operator: g.operator,
		Winner:   winner,
		Steps:    g.battle.StepCount(),
		Blue:     g.battle.Count(Blue),
		Red:      g.battle.Count(Red),
		Duration: time.Since(g.started),
	}
	g.result = &res
	g.broadcastMsg(Envelope{T: MsgEnded, Data: EndedMsg{
		SID:        res.SID,
		Winner:     res.Winner,
		Steps:      res.Steps,
		Blue:       res.Blue,
		Red:        res.Red,
		DurationMs: res.Duration.Milliseconds(),
	}})
	g.mu.Unlock()

	log.Printf("battle %s: ended after %d steps, winner %s (blue %d, red %d)",
		res.SID, res.Steps, res.Winner, res.Blue, res.Red)
	if g.onEnd != nil {
		g.onEnd(res)
	}
}

// AddSpectator subscribes b to snapshots. Returns "" when the battle is full.
func (g *Game) AddSpectator(b Broadcaster) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.spectators) >= maxSpectatorsPerBattle {
		return ""
	}
	id := GenerateID(4)
	g.spectators[id] = b
	g.sendState(b)
	return id
}

// RemoveSpectator unsubscribes a spectator
func (g *Game) RemoveSpectator(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.spectators[id]; !ok {
		return
	}
	delete(g.spectators, id)
	if len(g.spectators) == 0 {
		g.emptySince = time.Now()
	}
}

// SpectatorCount returns the number of subscribed spectators
func (g *Game) SpectatorCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.spectators)
}

// IdleFor reports how long the battle has had no spectators
func (g *Game) IdleFor(now time.Time) time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.spectators) > 0 {
		return 0
	}
	return now.Sub(g.emptySince)
}

// Result returns the final result, or nil while the battle is running
func (g *Game) Result() *BattleResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.result
}

// Info summarizes the battle for listings
func (g *Game) Info() SessionInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.info()
}

func (g *Game) info() SessionInfo {
	return SessionInfo{
		ID:         g.id,
		Name:       g.name,
		Operator:   g.operator,
		Step:       g.battle.StepCount(),
		Blue:       g.battle.Count(Blue),
		Red:        g.battle.Count(Red),
		Spectators: len(g.spectators),
	}
}

// Detail returns the battle listing with the report of the most recent step
func (g *Game) Detail() BattleDetail {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return BattleDetail{SessionInfo: g.info(), Report: g.lastReport}
}

// encodeState marshals the current snapshot; callers hold g.mu
func (g *Game) encodeState() []byte {
	snap, err := g.battle.Snapshot(g.id)
	if err != nil {
		log.Printf("battle %s: snapshot: %v", g.id, err)
		return nil
	}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		log.Printf("battle %s: msgpack marshal: %v", g.id, err)
		return nil
	}
	return data
}

func (g *Game) sendState(b Broadcaster) {
	if data := g.encodeState(); data != nil {
		b.SendBinary(data)
	}
}

// broadcastState sends the current snapshot to all spectators
func (g *Game) broadcastState() {
	if len(g.spectators) == 0 {
		return
	}
	data := g.encodeState()
	if data == nil {
		return
	}
	for _, s := range g.spectators {
		s.SendBinary(data)
	}
}

// broadcastMsg sends a message to all spectators of the battle
func (g *Game) broadcastMsg(msg Envelope) {
	for _, s := range g.spectators {
		s.SendJSON(msg)
	}
}
