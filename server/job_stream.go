package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
)

// See https://github.com/gorilla/websocket/blob/main/examples/chat/client.go
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongWait
	maxMessageSize = 4096
)

// jobUpdate is the message pushed to stream clients
type jobUpdate struct {
	Type string     `json:"type"` // "job_update"
	Job  *async.Job `json:"job"`
}

// jobStreamClient is one /ws/jobs connection
type jobStreamClient struct {
	conn      *websocket.Conn
	updates   chan *async.Job
	ownerID   string // empty = every owner
	done      chan struct{}
	closeOnce sync.Once
}

func (c *jobStreamClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *jobStreamClient) wants(job *async.Job) bool {
	return c.ownerID == "" || job.OwnerID == c.ownerID
}

// HandleJobStream upgrades to a websocket that pushes every job change.
// ?owner_id= limits the stream to one owner.
func (s *CadenceServer) HandleJobStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	client := &jobStreamClient{
		conn:    conn,
		updates: s.queue.Subscribe(),
		ownerID: r.URL.Query().Get("owner_id"),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()
	s.logger.Debugw("Job stream client connected", "remote", r.RemoteAddr, logger.FieldOwnerID, client.ownerID)

	s.wg.Add(2)
	go s.writePump(client)
	go s.readPump(client)
}

func (s *CadenceServer) removeClient(c *jobStreamClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		s.queue.Unsubscribe(c.updates)
	}
	c.close()
}

// readPump discards client messages and notices disconnects
func (s *CadenceServer) readPump(c *jobStreamClient) {
	defer s.wg.Done()
	defer s.removeClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards queue updates and keeps the connection alive
func (s *CadenceServer) writePump(c *jobStreamClient) {
	defer s.wg.Done()
	defer s.removeClient(c)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-s.ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case job := <-c.updates:
			if !c.wants(job) {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(jobUpdate{Type: "job_update", Job: job}); err != nil {
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
