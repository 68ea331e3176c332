package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何在不阻塞核心的前提下，對任意數量的客戶端做實時推送？
//
// 核心挑戰：
//   1. 死連接偵測：客戶端異常斷線時伺服器必須能察覺
//   2. 慢消費者：單一客戶端的壅塞不能拖累整個房間
//   3. 發送即忘：核心對已關閉的會話發送必須靜默無害
//
// 設計方案：
//   ✅ Ping/Pong 心跳（54s/60s）- 偵測死連接
//   ✅ 緩衝 channel 異步發送 - 緩衝滿即丟棄
//   ✅ 關閉旗標 + sync.Once - 關閉後的發送靜默丟棄

const (
	// 寫入單一訊息的期限
	writeWait = 10 * time.Second

	// 未收到任何訊息（含 Pong）的讀取超時
	pongWait = 60 * time.Second

	// Ping 間隔，留 6 秒余量配合 pongWait
	pingPeriod = 54 * time.Second

	// 單一會話的發送緩衝
	sendBufferSize = 256
)

// Hub WebSocket 傳輸層
//
// 負責升級連線、派發會話生命週期事件給核心、維持心跳。
// 核心只透過 Session 介面接觸這一層。
type Hub struct {
	core     *Core
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*wsSession
}

// NewHub 創建傳輸層
func NewHub(core *Core, logger *slog.Logger) *Hub {
	return &Hub{
		core:   core,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: make(map[string]*wsSession),
	}
}

// ServeWS 處理 WebSocket 連線
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	sess := &wsSession{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: hub.logger,
	}

	hub.mu.Lock()
	hub.sessions[sess.id] = sess
	hub.mu.Unlock()

	go sess.writePump()
	hub.core.HandleOpen(sess)
	go hub.readPump(sess)

	hub.logger.Info("WebSocket 連線建立", "session_id", sess.id)
}

// readPump 讀取客戶端訊息並派發給核心
//
// 讀取端退出即視為會話關閉：通知核心、註銷會話、關閉底層連線。
func (hub *Hub) readPump(sess *wsSession) {
	defer func() {
		sess.shutdown()
		hub.core.HandleClose(sess.id)

		hub.mu.Lock()
		delete(hub.sessions, sess.id)
		hub.mu.Unlock()
	}()

	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Error("WebSocket 讀取錯誤", "error", err, "session_id", sess.id)
			}
			return
		}
		if messageType == websocket.TextMessage {
			hub.core.HandleMessage(sess, message)
		}
	}
}

// Count 存活會話數
func (hub *Hub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.sessions)
}

// Stop 停止傳輸層，關閉所有會話
func (hub *Hub) Stop() {
	hub.mu.Lock()
	sessions := make([]*wsSession, 0, len(hub.sessions))
	for _, sess := range hub.sessions {
		sessions = append(sessions, sess)
	}
	hub.sessions = make(map[string]*wsSession)
	hub.mu.Unlock()

	for _, sess := range sessions {
		sess.shutdown()
	}

	hub.logger.Info("WebSocket 傳輸層已停止")
}

// wsSession 一條 WebSocket 會話，實作核心的 Session 介面
type wsSession struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	logger *slog.Logger
}

func (s *wsSession) ID() string {
	return s.id
}

// Send 發送即忘
//
// 會話已關閉即靜默丟棄；緩衝滿（慢消費者）也丟棄，
// 絕不阻塞呼叫端。
func (s *wsSession) Send(v any) {
	if s.closed.Load() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("序列化出站訊息失敗", "error", err, "session_id", s.id)
		return
	}
	select {
	case s.send <- data:
	default:
		s.logger.Warn("發送緩衝已滿，丟棄訊息", "session_id", s.id)
	}
}

func (s *wsSession) IsOpen() bool {
	return !s.closed.Load()
}

// Close 主動關閉會話（踢出寬限期滿時由核心呼叫）
func (s *wsSession) Close() {
	s.shutdown()
}

// shutdown 冪等的會話拆除
//
// 不關閉 send channel：發送端與關閉端分屬不同 goroutine，
// 以旗標擋下後續發送即可，writePump 由 done 通知退出。
func (s *wsSession) shutdown() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
		_ = s.conn.Close()
	})
}

// writePump 寫入訊息與心跳
func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.shutdown()
	}()

	for {
		select {
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出佇列中剩餘的訊息
			n := len(s.send)
			for i := 0; i < n; i++ {
				if err := s.conn.WriteMessage(websocket.TextMessage, <-s.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			deadline := time.Now().Add(time.Second)
			if err := s.conn.SetWriteDeadline(deadline); err == nil {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}
	}
}
