package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cinefm/backend/internal/metrics"
	"cinefm/backend/pkg/utils"
	"cinefm/backend/service/filemanager"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Frame 是 WebSocket 上传输的一条消息，两个方向格式相同
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler serves the events of connected clients.
type Handler interface {
	Connect(c filemanager.Client)
	Disconnect(c filemanager.Client)
	Handle(c filemanager.Client, event string, data json.RawMessage) error
}

// Server 负责 WebSocket 连接的升级、读写循环和客户端注册
type Server struct {
	handler  Handler
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewServer 是事件通道服务的构造函数
func NewServer(h Handler, logger zerolog.Logger) *Server {
	return &Server{
		handler: h,
		logger:  logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes returns the HTTP handler serving /ws, /healthz and, if enabled, /metrics.
func (s *Server) Routes(withMetrics bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnection)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if withMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

// ListenAndServe serves Routes on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, withMetrics bool) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(withMetrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting WebSocket server")
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Shutdown 关闭所有活动连接
func (s *Server) Shutdown() {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// Count returns the number of connected clients.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleConnection 将 HTTP 请求升级为 WebSocket 连接，并一直运行到客户端断开
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Failed to upgrade connection")
		return
	}

	c := newClient(conn, remoteHost(r), s.logger)
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	metrics.ClientConnected()

	defer func() {
		c.close()
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		metrics.ClientDisconnected()
		s.handler.Disconnect(c)
	}()

	go c.writePump()
	s.handler.Connect(c)
	s.readPump(c)
}

// readPump 读取客户端请求，同一客户端的请求依次处理
func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("client", c.id).Msg("Error reading from websocket")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			s.logger.Warn().Err(err).Str("client", c.id).Msg("Malformed frame")
			continue
		}
		s.dispatch(c, frame)
	}
}

// dispatch 在读循环中按到达顺序处理请求；传输引擎自行异步执行，不会阻塞这里
func (s *Server) dispatch(c *client, frame Frame) {
	defer utils.Recover(c.logger)
	if err := s.handler.Handle(c, frame.Event, frame.Data); err != nil {
		c.logger.Warn().Err(err).Str("event", frame.Event).Msg("Request failed")
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// client 是一个已连接的事件通道
type client struct {
	id     string
	addr   string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newClient(conn *websocket.Conn, addr string, logger zerolog.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:     id,
		addr:   addr,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("client", id).Logger(),
	}
}

func (c *client) ID() string   { return c.id }
func (c *client) Addr() string { return c.addr }

// Emit queues an event. It waits while the send buffer is full and returns
// immediately once the client is gone.
func (c *client) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("cannot encode payload")
		return
	}
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("cannot encode frame")
		return
	}

	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *client) writePump() {
	defer utils.Recover(c.logger)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing to websocket")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
