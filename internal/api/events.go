package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"subforge/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

func (s *Server) upgrader() websocket.Upgrader {
	origins := s.cfg.Server.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
		},
	}
}

// handleEvents streams progress for a job over a websocket. The stream ends
// with a "status" message carrying the stored job row.
func (s *Server) handleEvents(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}
	// Subscribe before the handshake completes so no event is missed.
	events, unsubscribe, live := s.manager.Subscribe(job.ID)
	defer unsubscribe()

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	logger := logging.WithContext(c.Request.Context(), s.logger).With(logging.String(logging.FieldJobID, job.ID))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(ev Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			logger.Debug("event stream write failed", logging.Error(err))
			return false
		}
		return true
	}

	if live {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
	stream:
		for {
			select {
			case p, open := <-events:
				if !open {
					break stream
				}
				if !write(Event{Type: "progress", Progress: &p}) {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}

	final, err := s.manager.Get(c.Request.Context(), job.ID)
	if err != nil {
		final = job
	}
	if !write(Event{Type: "status", Job: final}) {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete"),
		time.Now().Add(writeWait))
}
