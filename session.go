package main

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

const maxSessions = 16

// SessionIdleTimeout is how long a battle may go without spectators before it
// is stopped and removed
var SessionIdleTimeout = 30 * time.Second

// ErrTooManySessions is returned when the battle limit is reached
var ErrTooManySessions = errors.New("too many active battles")

// Session is one battle that spectators can watch
type Session struct {
	ID       string
	Name     string
	Operator string
	Created  time.Time
	Game     *Game
}

// SessionManager handles creation, lookup and reaping of battles. All
// battles share one worker pool.
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	pool      *WorkerPool
	db        *DB
	analytics *Analytics
}

// NewSessionManager creates a SessionManager. db and analytics may be nil.
func NewSessionManager(pool *WorkerPool, db *DB, analytics *Analytics) *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*Session),
		pool:      pool,
		db:        db,
		analytics: analytics,
	}
}

// CreateSession builds a battle from cfg and starts its game loop
func (sm *SessionManager) CreateSession(name, operator string, cfg ScenarioConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if name == "" {
		name = cfg.Name
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil, ErrTooManySessions
	}

	id := GenerateUUID()
	battle := NewBattle(cfg, sm.pool, nil)
	game := NewGame(id, name, operator, battle, sm.battleEnded)
	sess := &Session{
		ID:       id,
		Name:     name,
		Operator: operator,
		Created:  time.Now(),
		Game:     game,
	}
	sm.sessions[id] = sess
	go game.Run()
	if sm.analytics != nil {
		sm.analytics.Track(EvtBattleStart, 0, id, battleEventData(cfg.Name, cfg.Blue.Count, cfg.Red.Count))
		sm.analytics.SetActiveSessions(len(sm.sessions))
	}
	return sess, nil
}

// battleEnded frees the battle's slot and records its result. It runs on the
// battle's goroutine before Finished is closed.
func (sm *SessionManager) battleEnded(res BattleResult) {
	sm.mu.Lock()
	delete(sm.sessions, res.SID)
	n := len(sm.sessions)
	sm.mu.Unlock()

	if sm.analytics != nil {
		sm.analytics.SetActiveSessions(n)
		sm.analytics.Track(EvtBattleEnd, 0, res.SID, resultEventData(res))
	}
	if sm.db == nil {
		return
	}
	if _, err := sm.db.RecordBattle(res); err != nil {
		log.Printf("battle %s: record result: %v", res.SID, err)
	}
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// StopSession stops a battle and removes it. Returns false if it did not exist.
func (sm *SessionManager) StopSession(id string) bool {
	sm.mu.Lock()
	sess, ok := sm.sessions[id]
	delete(sm.sessions, id)
	n := len(sm.sessions)
	sm.mu.Unlock()
	if !ok {
		return false
	}
	sess.Game.Stop()
	if sm.analytics != nil {
		sm.analytics.SetActiveSessions(n)
	}
	return true
}

// RemoveSpectator unsubscribes a spectator from a session
func (sm *SessionManager) RemoveSpectator(sessionID, spectatorID string) {
	sess := sm.GetSession(sessionID)
	if sess == nil {
		return
	}
	sess.Game.RemoveSpectator(spectatorID)
}

// Reap stops and removes battles that have had no spectators for longer than
// SessionIdleTimeout. Returns the number removed.
func (sm *SessionManager) Reap(now time.Time) int {
	sm.mu.RLock()
	var idle []string
	for id, sess := range sm.sessions {
		if sess.Game.IdleFor(now) > SessionIdleTimeout {
			idle = append(idle, id)
		}
	}
	sm.mu.RUnlock()

	reaped := 0
	for _, id := range idle {
		if sm.StopSession(id) {
			log.Printf("battle %s: reaped after %v without spectators", id, SessionIdleTimeout)
			reaped++
		}
	}
	return reaped
}

// RunReaper reaps idle battles until ctx is cancelled
func (sm *SessionManager) RunReaper(ctx context.Context) error {
	interval := SessionIdleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			sm.Reap(now)
		case <-ctx.Done():
			return nil
		}
	}
}

// StopAll stops every battle and waits for their loops to exit
func (sm *SessionManager) StopAll() {
	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for id, sess := range sm.sessions {
		sessions = append(sessions, sess)
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	for _, sess := range sessions {
		sess.Game.Stop()
	}
	for _, sess := range sessions {
		<-sess.Game.Finished()
	}
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ListSessions returns info about all active sessions, oldest first
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	sm.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Created.Before(sessions[j].Created)
	})
	list := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		list = append(list, sess.Game.Info())
	}
	return list
}
