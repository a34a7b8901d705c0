package http

import (
	"encoding/json"
	"net/http"
	"time"

	"exitforecast/predict"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxLiveMessage = 64 << 10
)

// liveReply 每条WebSocket消息的应答
type liveReply struct {
	Result *predict.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status int             `json:"status,omitempty"`
}

// liveSession 单个WebSocket连接
type liveSession struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	id     string
	logger *zap.Logger
}

// handleLive 升级为WebSocket，每条文本消息为一条输入记录，逐条预测并应答
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := &liveSession{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
		id:   uuid.NewString(),
	}
	session.logger = h.logger.With(zap.String("session_id", session.id), zap.String("request_id", GetRequestID(r.Context())))
	session.logger.Debug("live session opened")

	go session.writePump()
	session.readPump(func(payload []byte) liveReply {
		record, err := predict.DecodeRecord(payload)
		if err != nil {
			return liveReply{Error: err.Error(), Status: statusFor(err)}
		}
		result, err := h.svc.PredictOne(r.Context(), record)
		if err != nil {
			return liveReply{Error: err.Error(), Status: statusFor(err)}
		}
		return liveReply{Result: &result}
	})
	session.logger.Debug("live session closed")
}

// readPump 读取消息直到连接关闭，应答按消息顺序发出
func (s *liveSession) readPump(handle func([]byte) liveReply) {
	defer func() {
		close(s.send)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxLiveMessage)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		reply, err := json.Marshal(handle(payload))
		if err != nil {
			s.logger.Error("encode live reply", zap.Error(err))
			return
		}
		select {
		case s.send <- reply:
		case <-s.done:
			return
		}
	}
}

// writePump 写入应答并定期发送ping
func (s *liveSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(s.done)
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
