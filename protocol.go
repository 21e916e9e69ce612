package main

import "encoding/json"

// Client -> Server message types
const (
	MsgList     = "list"   // list battles
	MsgCheck    = "check"  // check if a battle exists
	MsgWatch    = "watch"  // subscribe to a battle's snapshots
	MsgLeave    = "leave"  // unsubscribe
	MsgCreate   = "create" // start a battle (operator only)
	MsgStop     = "stop"   // stop a battle (operator only)
	MsgRegister = "register"
	MsgLogin    = "login"
	MsgAuth     = "auth"
)

// Server -> Client message types
const (
	MsgSessions = "sessions"
	MsgChecked  = "checked"
	MsgWatching = "watching"
	MsgCreated  = "created"
	MsgEnded    = "ended"
	MsgError    = "error"
	MsgAuthOK   = "auth_ok"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg starts a battle. Scenario overlays the server's default scenario.
type CreateMsg struct {
	Name     string          `json:"name"`
	Scenario json.RawMessage `json:"scenario,omitempty"`
}

// WatchMsg subscribes the connection to a battle
type WatchMsg struct {
	SID string `json:"sid"`
}

// StopMsg ends a battle early
type StopMsg struct {
	SID string `json:"sid"`
}

// CheckMsg is sent by client to check if a battle exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the response to a battle check
type CheckedMsg struct {
	SID    string `json:"sid"`
	Exists bool   `json:"exists"`
	Name   string `json:"name,omitempty"`
	Step   int    `json:"step,omitempty"`
}

// SessionInfo is used in the battle list
type SessionInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Operator   string `json:"operator"`
	Step       int    `json:"step"`
	Blue       int    `json:"blue"`
	Red        int    `json:"red"`
	Spectators int    `json:"spectators"`
}

// BattleDetail is a battle's listing plus its most recent step
type BattleDetail struct {
	SessionInfo
	Report StepReport `json:"report"`
}

// EndedMsg is broadcast to spectators when a battle finishes
type EndedMsg struct {
	SID        string `json:"sid"`
	Winner     string `json:"winner"`
	Steps      int    `json:"steps"`
	Blue       int    `json:"blue"`
	Red        int    `json:"red"`
	DurationMs int64  `json:"ms"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// RegisterMsg creates an operator account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates an operator
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a session from a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token      string `json:"token"`
	Username   string `json:"username"`
	OperatorID int64  `json:"oid"`
}

// UnitState is one unit in a snapshot
type UnitState struct {
	ID int     `json:"id" msgpack:"id"`
	X  float64 `json:"x" msgpack:"x"`
	Y  float64 `json:"y" msgpack:"y"`
	F  uint8   `json:"f" msgpack:"f"` // faction
	HP int     `json:"hp" msgpack:"hp"`
}

// ProjectileState is one projectile in a snapshot
type ProjectileState struct {
	ID int     `json:"id" msgpack:"id"`
	X  float64 `json:"x" msgpack:"x"`
	Y  float64 `json:"y" msgpack:"y"`
	F  uint8   `json:"f" msgpack:"f"`
}

// EffectState is an explosion or smoke puff
type EffectState struct {
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Frame int     `json:"fr" msgpack:"fr"`
}

// BeamState is a beam zone with its animation phase
type BeamState struct {
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	W     float64 `json:"w" msgpack:"w"`
	H     float64 `json:"h" msgpack:"h"`
	Phase int     `json:"ph" msgpack:"ph"`
}

// PointState is one hull vertex
type PointState struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// BattleSnapshot is the binary frame spectators receive
type BattleSnapshot struct {
	SID         string            `json:"sid" msgpack:"sid"`
	Step        int               `json:"step" msgpack:"step"`
	Width       float64           `json:"w" msgpack:"w"`
	Height      float64           `json:"h" msgpack:"h"`
	Units       []UnitState       `json:"u" msgpack:"u"`
	Wrecks      []UnitState       `json:"wr" msgpack:"wr"`
	Projectiles []ProjectileState `json:"pr" msgpack:"pr"`
	Explosions  []EffectState     `json:"ex" msgpack:"ex"`
	Smokes      []EffectState     `json:"sm" msgpack:"sm"`
	Beams       []BeamState       `json:"bm" msgpack:"bm"`
	Hull        []PointState      `json:"hull" msgpack:"hull"`
	BlueHealth  []int             `json:"bh" msgpack:"bh"` // ascending
	RedHealth   []int             `json:"rh" msgpack:"rh"` // ascending
}
