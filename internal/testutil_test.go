package internal_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/GraphicHealer/Websocket-KingInTheCorner/internal"
)

// fakeSession 測試用的傳輸會話，記錄所有送出的訊息
type fakeSession struct {
	id string

	mu     sync.Mutex
	sent   []any
	open   bool
	closed bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, open: true}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.sent = append(s.sent, v)
	}
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.closed = true
}

func (s *fakeSession) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// messages 送出訊息的快照
func (s *fakeSession) messages() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.sent))
	copy(out, s.sent)
	return out
}

// messagesOfType 依 type 標籤過濾送出的訊息
func (s *fakeSession) messagesOfType(msgType string) []any {
	var out []any
	for _, m := range s.messages() {
		if typeOf(m) == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSession) countOfType(msgType string) int {
	return len(s.messagesOfType(msgType))
}

func (s *fakeSession) lastOfType(msgType string) (any, bool) {
	msgs := s.messagesOfType(msgType)
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}

// typeOf 讀取出站訊息的 type 標籤
func typeOf(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	return envelope.Type
}

// testConfig 測試配置
//
// 所有超時預設拉到一小時，測試只縮短自己要驗證的那一個，
// 避免無關的計時器在測試過程中觸發。
func testConfig() *internal.Config {
	cfg := internal.DefaultConfig()
	cfg.Game.StartDelay = time.Hour
	cfg.Game.CountdownInterval = 10 * time.Millisecond
	cfg.Game.ReadyTimeout = time.Hour
	cfg.Game.AloneTimeout = time.Hour
	cfg.Game.KickGrace = 10 * time.Millisecond
	cfg.Game.JanitorInterval = time.Hour
	cfg.Game.RoomMaxAge = time.Hour
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCore(t *testing.T, mutate func(cfg *internal.Config)) *internal.Core {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	core := internal.NewCore(cfg, discardLogger())
	t.Cleanup(core.Stop)
	return core
}

// connect 建立會話並完成握手
func connect(t *testing.T, core *internal.Core, id string) *fakeSession {
	t.Helper()

	sess := newFakeSession(id)
	core.HandleOpen(sess)
	return sess
}

// send 以 JSON 驅動調度器，同時覆蓋訊息解析路徑
func send(t *testing.T, core *internal.Core, sess *fakeSession, msgType string, fields map[string]any) {
	t.Helper()

	payload := map[string]any{"type": msgType}
	for k, v := range fields {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("組裝測試訊息失敗: %v", err)
	}
	core.HandleMessage(sess, data)
}

func joinPublic(t *testing.T, core *internal.Core, sess *fakeSession, name string) {
	t.Helper()
	send(t, core, sess, "joinPublic", map[string]any{"displayName": name})
}

// roomIDOf 從會話收到的最後一則 roomUpdate 取得房號
func roomIDOf(t *testing.T, sess *fakeSession) string {
	t.Helper()

	msg, ok := sess.lastOfType("roomUpdate")
	if !ok {
		t.Fatalf("會話 %s 尚未收到 roomUpdate", sess.id)
	}
	update, ok := msg.(internal.RoomUpdateMessage)
	if !ok {
		t.Fatalf("roomUpdate 型別不符: %T", msg)
	}
	return update.RoomID
}

// fillPublicRoom 建立 n 條會話並全部加入公開配對
func fillPublicRoom(t *testing.T, core *internal.Core, n int) []*fakeSession {
	t.Helper()

	sessions := make([]*fakeSession, 0, n)
	for i := 0; i < n; i++ {
		sess := connect(t, core, fmt.Sprintf("sess-%02d", i))
		joinPublic(t, core, sess, fmt.Sprintf("玩家%d", i))
		sessions = append(sessions, sess)
	}
	return sessions
}
