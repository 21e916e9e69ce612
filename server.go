package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const (
	qrSize           = 256
	defaultHistory   = 20
	maxHistory       = 200
	defaultStatsDays = 7
	maxStatsDays     = 365
)

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorMsg{Msg: msg})
}

// queryInt reads a positive integer query parameter clamped to [1, max]
func queryInt(r *http.Request, key string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return clampInt(v, 1, max)
}

// spectateURL is the link encoded in a battle's QR code
func spectateURL(publicURL string, r *http.Request, sid string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/" + sid
}

// SetupRoutes configures HTTP routes. An empty clientDir disables static files.
func SetupRoutes(hub *Hub, clientDir, publicURL string) *http.ServeMux {
	mux := http.NewServeMux()

	if clientDir != "" {
		// Serve static files with no-cache so browsers always revalidate
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			// SPA: serve index.html for root and spectate links
			if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
				http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		}))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("GET /api/battles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.sessions.ListSessions())
	})

	mux.HandleFunc("GET /api/battles/{id}", func(w http.ResponseWriter, r *http.Request) {
		sess := hub.sessions.GetSession(r.PathValue("id"))
		if sess == nil {
			writeError(w, http.StatusNotFound, "battle not found")
			return
		}
		writeJSON(w, http.StatusOK, sess.Game.Detail())
	})

	mux.HandleFunc("GET /api/battles/{id}/qr.png", func(w http.ResponseWriter, r *http.Request) {
		sess := hub.sessions.GetSession(r.PathValue("id"))
		if sess == nil {
			writeError(w, http.StatusNotFound, "battle not found")
			return
		}
		png, err := qrcode.Encode(spectateURL(publicURL, r, sess.ID), qrcode.Medium, qrSize)
		if err != nil {
			log.Printf("http: qr for %s: %v", sess.ID, err)
			writeError(w, http.StatusInternalServerError, "qr encode failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, http.StatusOK, []BattleRow{})
			return
		}
		rows, err := hub.db.RecentBattles(queryInt(r, "limit", defaultHistory, maxHistory))
		if err != nil {
			log.Printf("http: history: %v", err)
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		days := queryInt(r, "days", defaultStatsDays, maxStatsDays)
		stats := map[string]interface{}{
			"connections": hub.TotalConns(),
			"battles":     hub.sessions.Count(),
			"days":        days,
		}
		if hub.analytics != nil {
			counts, err := hub.analytics.EventCounts(days)
			if err != nil {
				log.Printf("http: event counts: %v", err)
			}
			results, err := hub.analytics.BattleStats(days)
			if err != nil {
				log.Printf("http: battle stats: %v", err)
			}
			operators, err := hub.analytics.ActiveOperators(days)
			if err != nil {
				log.Printf("http: active operators: %v", err)
			}
			peers, active := hub.analytics.GetLiveMetrics()
			stats["peers"] = peers
			stats["active"] = active
			stats["events"] = counts
			stats["results"] = results
			stats["operators"] = operators
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("GET /api/scenario/schema", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ScenarioSchema())
	})

	mux.HandleFunc("GET /api/scenario/default", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.scenario)
	})

	return mux
}
