package events

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server는 엔티티 상태 변경을 WebSocket으로 브로드캐스트합니다
type Server struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients map[*Client]bool
	mutex   sync.RWMutex
}

// Client는 WebSocket 클라이언트를 나타냅니다
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
	logger *zap.Logger
}

// Event는 브로드캐스트되는 이벤트 메시지
type Event struct {
	Type    string          `json:"type"`    // "cameras", "users", "sensors"
	Payload json.RawMessage `json:"payload"`
}

// NewServer는 새로운 이벤트 서버를 생성합니다
func NewServer(logger *zap.Logger) *Server {
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 로컬 브리지: 모든 origin 허용
			},
		},
		clients: make(map[*Client]bool),
	}
}

// HandleWebSocket은 WebSocket 연결을 처리합니다
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := "client-" + uuid.NewString()[:8]
	client := &Client{
		id:     clientID,
		conn:   conn,
		send:   make(chan []byte, 64),
		server: s,
		logger: s.logger.With(zap.String("client_id", clientID)),
	}

	s.registerClient(client)

	go client.writePump()
	go client.readPump()

	client.logger.Info("Event client connected",
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// Broadcast는 모든 클라이언트에게 이벤트를 전송합니다
func (s *Server) Broadcast(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal event payload", zap.Error(err))
		return
	}

	msg, err := json.Marshal(Event{Type: eventType, Payload: data})
	if err != nil {
		s.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- msg:
		default:
			// 느린 클라이언트는 이벤트 드롭 (블로킹 방지)
			client.logger.Debug("Send buffer full, dropping event")
		}
	}
}

// GetClientCount는 연결된 클라이언트 수를 반환합니다
func (s *Server) GetClientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

// Close는 모든 클라이언트 연결을 종료합니다
func (s *Server) Close() {
	s.logger.Info("Closing event server")

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// send 채널을 닫아 writePump을 종료시킨다. 여기서 맵에서 먼저
	// 제거하므로 readPump의 unregisterClient는 이중 close 없이 통과함.
	for client := range s.clients {
		delete(s.clients, client)
		close(client.send)
		client.conn.Close()
	}
}

// registerClient는 클라이언트를 등록합니다
func (s *Server) registerClient(client *Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[client] = true

	s.logger.Info("Client registered",
		zap.String("client_id", client.id),
		zap.Int("total_clients", len(s.clients)),
	)
}

// unregisterClient는 클라이언트를 등록 해제합니다
func (s *Server) unregisterClient(client *Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.clients[client]; exists {
		delete(s.clients, client)
		close(client.send)

		s.logger.Info("Client unregistered",
			zap.String("client_id", client.id),
			zap.Int("total_clients", len(s.clients)),
		)
	}
}

// readPump은 연결 종료 감지를 위해 읽기를 유지합니다.
// 클라이언트가 보내는 메시지는 무시합니다 (단방향 피드).
func (c *Client) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
	}
}

// writePump은 WebSocket으로 메시지를 씁니다
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Error("Failed to write message", zap.Error(err))
			break
		}
	}
}
