package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unklstewy/flight-display/internal/display"
)

// StreamInterval is how often the stream checks the board for changes.
const StreamInterval = 500 * time.Millisecond

const writeWait = 5 * time.Second

// handleStream upgrades to a websocket and pushes a board snapshot after
// every update or error, starting with the current state.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.allowOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if !s.track(conn) {
		return
	}
	defer s.untrack(conn)

	s.log.Debug("Stream client connected", "remote", r.RemoteAddr)

	// Reads only detect the close; clients send nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	lastSeq := -1
	for {
		snap := s.board.Snapshot()
		if seq := sequence(snap); seq != lastSeq {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				s.log.Debug("Stream client gone", "error", err)
				return
			}
			lastSeq = seq
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// track registers conn for Shutdown. It reports false once shutdown has begun.
func (s *Server) track(conn *websocket.Conn) bool {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.streams[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	delete(s.streams, conn)
}

// openStreams returns the number of connected stream clients.
func (s *Server) openStreams() int {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	return len(s.streams)
}

// closeStreams refuses new streams and closes the open ones. Their handlers
// exit once the read goroutine sees the closed connection.
func (s *Server) closeStreams() int {
	s.streamsMu.Lock()
	s.shuttingDown = true
	conns := make([]*websocket.Conn, 0, len(s.streams))
	for conn := range s.streams {
		conns = append(conns, conn)
	}
	s.streamsMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	deadline := time.Now().Add(writeWait)
	for _, conn := range conns {
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			s.log.Debug("Close frame not sent", "error", err)
		}
		conn.Close()
	}
	return len(conns)
}

// sequence changes whenever the board receives a result.
func sequence(s display.Snapshot) int {
	return s.Updates + s.Errors
}

// allowOrigin applies the CORS origin list to websocket handshakes.
func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
