package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtBattleStart    = "battle_start"
	EvtBattleEnd      = "battle_end"
	EvtSpectatorJoin  = "spectator_join"
	EvtOperatorLogin  = "operator_login"
	EvtOperatorSignup = "operator_signup"
)

const (
	analyticsBatchSize     = 50
	analyticsFlushInterval = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type       string
	OperatorID int64
	SessionID  string
	Data       string // JSON metadata (optional)
	Timestamp  time.Time
}

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	// Live metrics
	mu              sync.RWMutex
	concurrentPeers int
	activeSessions  int
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, 1024),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType string, operatorID int64, sessionID string, data string) {
	select {
	case <-a.stop:
		return
	default:
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:       evtType,
		OperatorID: operatorID,
		SessionID:  sessionID,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}:
	default:
		// channel full, drop rather than block a game loop
	}
}

// SetConcurrentPeers updates the live connection count
func (a *Analytics) SetConcurrentPeers(n int) {
	a.mu.Lock()
	a.concurrentPeers = n
	a.mu.Unlock()
}

// SetActiveSessions updates the live battle count
func (a *Analytics) SetActiveSessions(n int) {
	a.mu.Lock()
	a.activeSessions = n
	a.mu.Unlock()
}

// GetLiveMetrics returns current connections and battles
func (a *Analytics) GetLiveMetrics() (int, int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.concurrentPeers, a.activeSessions
}

// Stop flushes pending events and shuts down the writer. Safe to call twice.
func (a *Analytics) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, analyticsBatchSize)
	ticker := time.NewTicker(analyticsFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					a.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Printf("analytics: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, operator_id, session_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("analytics: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		oid := sql.NullInt64{Int64: evt.OperatorID, Valid: evt.OperatorID > 0}
		sid := sql.NullString{String: evt.SessionID, Valid: evt.SessionID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, oid, sid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Printf("analytics: insert error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("analytics: commit error: %v", err)
	}
}

func battleEventData(scenario string, blue, red int) string {
	data, _ := json.Marshal(map[string]interface{}{
		"scenario": scenario,
		"blue":     blue,
		"red":      red,
	})
	return string(data)
}

func resultEventData(res BattleResult) string {
	data, _ := json.Marshal(map[string]interface{}{
		"winner":   res.Winner,
		"steps":    res.Steps,
		"duration": res.Duration.Seconds(),
	})
	return string(data)
}

// --- Query methods for the API ---

// ActiveOperators returns the number of distinct operators seen in the last N days
func (a *Analytics) ActiveOperators(days int) (int, error) {
	if a.db == nil {
		return 0, nil
	}
	var count int
	err := a.db.conn.QueryRow(`
		SELECT COUNT(DISTINCT operator_id) FROM analytics_events
		WHERE operator_id IS NOT NULL AND created_at >= date('now', '-' || ? || ' days')
	`, days).Scan(&count)
	return count, err
}

// BattleStats returns finished battle counts per winner for the last N days
func (a *Analytics) BattleStats(days int) ([]BattleAnalytics, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT COALESCE(json_extract(data, '$.winner'), 'unknown') AS winner,
			COUNT(*) AS cnt,
			AVG(json_extract(data, '$.steps')) AS avg_steps,
			AVG(json_extract(data, '$.duration')) AS avg_dur
		FROM analytics_events
		WHERE event_type = ? AND json_valid(data)
			AND created_at >= date('now', '-' || ? || ' days')
		GROUP BY winner
		ORDER BY cnt DESC
	`, EvtBattleEnd, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BattleAnalytics
	for rows.Next() {
		var b BattleAnalytics
		var avgSteps, avgDur sql.NullFloat64
		if err := rows.Scan(&b.Winner, &b.Count, &avgSteps, &avgDur); err != nil {
			return nil, err
		}
		b.AvgSteps = avgSteps.Float64
		b.AvgDuration = avgDur.Float64
		result = append(result, b)
	}
	return result, rows.Err()
}

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, err
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// BattleAnalytics holds aggregated results for one winner value
type BattleAnalytics struct {
	Winner      string  `json:"winner"`
	Count       int     `json:"count"`
	AvgSteps    float64 `json:"avg_steps"`
	AvgDuration float64 `json:"avg_duration"`
}
