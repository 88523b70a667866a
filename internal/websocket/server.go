package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/skywatch/avweather/internal/observability"
	"github.com/skywatch/avweather/pkg/logger"
)

// Message types pushed to observers
const (
	MessageTypeFeedUpdate = "feed_update"
)

// Message is one WebSocket frame payload
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Client is one connected observer
type Client struct {
	conn   *websocket.Conn
	send   chan *Message
	server *Server
	mu     sync.Mutex
	closed bool
}

// Server is the observer hub. Observers are read-only: the service pushes
// committed records out, clients send nothing the server acts on.
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	// done is closed when Run returns; every send into the hub selects
	// against it so callers never block after shutdown.
	done     chan struct{}
	upgrader websocket.Upgrader
	logger   *logger.Logger
	metrics  *observability.Metrics
	mu       sync.RWMutex
}

// NewServer creates a new observer hub
func NewServer(log *logger.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  log.Named("websocket"),
		metrics: metrics,
	}
}

// Run processes hub events until the context is cancelled
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("WebSocket hub started")
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			s.metrics.ObserverCount.Set(float64(count))
			s.logger.Debug("Observer registered", logger.Int("observer_count", count))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.mu.Lock()
				client.closed = true
				client.mu.Unlock()
				close(client.send)
			}
			count := len(s.clients)
			s.mu.Unlock()
			s.metrics.ObserverCount.Set(float64(count))
			s.logger.Debug("Observer unregistered", logger.Int("observer_count", count))

		case message := <-s.broadcast:
			s.mu.RLock()
			var stale []*Client
			for client := range s.clients {
				client.mu.Lock()
				closed := client.closed
				client.mu.Unlock()
				if closed {
					stale = append(stale, client)
					continue
				}

				select {
				case client.send <- message:
				default:
					// Send buffer full; the observer is too slow to keep.
					stale = append(stale, client)
				}
			}
			s.mu.RUnlock()

			if len(stale) > 0 {
				s.mu.Lock()
				for _, client := range stale {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.mu.Lock()
						if !client.closed {
							client.closed = true
							close(client.send)
						}
						client.mu.Unlock()
					}
				}
				s.metrics.ObserverCount.Set(float64(len(s.clients)))
				s.mu.Unlock()
			}
		}
	}
}

// HandleConnection upgrades an HTTP request into an observer connection
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Observer connected", logger.String("remote_addr", r.RemoteAddr))

	client := &Client{
		conn:   conn,
		send:   make(chan *Message, 64),
		server: s,
	}
	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// BroadcastFeedUpdate pushes one committed record to every observer.
// Dropped silently once the hub has stopped.
func (s *Server) BroadcastFeedUpdate(data any) {
	select {
	case s.broadcast <- &Message{Type: MessageTypeFeedUpdate, Data: data}:
	case <-s.done:
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		client.mu.Lock()
		if !client.closed {
			client.closed = true
			close(client.send)
		}
		client.mu.Unlock()
		client.conn.Close()
		delete(s.clients, client)
	}
	s.metrics.ObserverCount.Set(0)
	s.logger.Info("WebSocket hub stopped")
}

// readPump drains the connection so pings and close frames are processed.
// Observer messages are discarded.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Debug("WebSocket read error", logger.Error(err))
			}
			return
		}
	}
}

// writePump serializes queued messages onto the connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		data, err := json.Marshal(message)
		if err != nil {
			c.server.logger.Error("Failed to marshal message", logger.Error(err))
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
