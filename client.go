package main

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
	maxNameLen        = 30
)

// Client represents a WebSocket connection: a spectator, and an operator
// once authenticated
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	sessionID   string // battle being watched
	spectatorID string
	remoteAddr  string
	msgCount    int
	msgResetAt  time.Time
	// Auth state
	operatorID   int64  // 0 = spectator only
	operatorName string // "" = unauthenticated
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		// Spectators only send control envelopes
		if msgType != websocket.TextMessage {
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCheck:
		c.handleCheck(env.D)
	case MsgWatch:
		c.handleWatch(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgStop:
		c.handleStop(env.D)
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	default:
		c.sendError("unknown message type")
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

func (c *Client) handleList() {
	c.SendJSON(Envelope{T: MsgSessions, Data: c.hub.sessions.ListSessions()})
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg CheckMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{SID: msg.SID, Exists: false}})
		return
	}
	info := sess.Game.Info()
	c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{
		SID:    msg.SID,
		Exists: true,
		Name:   info.Name,
		Step:   info.Step,
	}})
}

func (c *Client) handleWatch(data json.RawMessage) {
	var msg WatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.watch(msg.SID)
}

// watch moves the client's subscription to the given battle
func (c *Client) watch(sid string) {
	sess := c.hub.sessions.GetSession(sid)
	if sess == nil {
		c.sendError("battle not found")
		return
	}
	c.handleLeave()

	// watching goes out before the first snapshot
	c.SendJSON(Envelope{T: MsgWatching, Data: map[string]string{"sid": sess.ID}})
	id := sess.Game.AddSpectator(c)
	if id == "" {
		c.sendError("battle full")
		return
	}
	c.sessionID = sess.ID
	c.spectatorID = id
	if c.hub.analytics != nil {
		c.hub.analytics.Track(EvtSpectatorJoin, c.operatorID, sess.ID, "")
	}
}

func (c *Client) handleLeave() {
	if c.sessionID == "" {
		return
	}
	c.hub.sessions.RemoveSpectator(c.sessionID, c.spectatorID)
	c.sessionID = ""
	c.spectatorID = ""
}

func (c *Client) handleCreate(data json.RawMessage) {
	if c.operatorID == 0 {
		c.sendError("operator login required")
		return
	}
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("malformed create message")
		return
	}
	cfg, err := OverlayScenario(c.hub.scenario, msg.Scenario)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	name := truncateName(strings.TrimSpace(msg.Name), maxNameLen)

	sess, err := c.hub.sessions.CreateSession(name, c.operatorName, cfg)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	log.Printf("battle %s: created by %s from %s", sess.ID, c.operatorName, c.remoteAddr)
	c.SendJSON(Envelope{T: MsgCreated, Data: map[string]string{"sid": sess.ID}})
	c.watch(sess.ID)
}

func (c *Client) handleStop(data json.RawMessage) {
	if c.operatorID == 0 {
		c.sendError("operator login required")
		return
	}
	var msg StopMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.sendError("battle not found")
		return
	}
	if sess.Operator != c.operatorName {
		c.sendError("only the creating operator can stop a battle")
		return
	}
	c.hub.sessions.StopSession(msg.SID)
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		log.Printf("auth: register %q: %v", msg.Username, err)
		c.sendError(publicAuthError(err))
		return
	}
	c.authenticated(id, strings.TrimSpace(msg.Username), token, EvtOperatorSignup)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(publicAuthError(err))
		return
	}
	c.authenticated(id, strings.TrimSpace(msg.Username), token, EvtOperatorLogin)
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError("invalid token")
		return
	}
	c.authenticated(id, username, msg.Token, EvtOperatorLogin)
}

func (c *Client) authenticated(id int64, username, token, evt string) {
	c.operatorID = id
	c.operatorName = username
	if c.hub.analytics != nil {
		c.hub.analytics.Track(evt, id, "", "")
	}
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:      token,
		Username:   username,
		OperatorID: id,
	}})
}

// truncateName keeps at most max runes of name
func truncateName(name string, max int) string {
	if utf8.RuneCountInString(name) <= max {
		return name
	}
	return string([]rune(name)[:max])
}

// publicAuthError hides storage details from clients
func publicAuthError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrRateLimited):
		return err.Error()
	case strings.HasPrefix(err.Error(), "username must"), strings.HasPrefix(err.Error(), "password must"):
		return err.Error()
	default:
		return "internal error"
	}
}
