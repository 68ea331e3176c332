package internal

import (
	"time"
)

// DefaultDisplayName 未提供暱稱時的預設值
const DefaultDisplayName = "Player"

// Connection 一條傳輸會話在伺服端的記錄
//
// 生命週期：會話建立時創建，會話關閉（正常或異常）或明確離開時銷毀。
// Connection 由 Registry 獨佔持有；Room 只保留成員列表的反向參照，
// 從不擁有 Connection 本身。
type Connection struct {
	Session     Session
	DisplayName string
	RoomID      string // 所在房間，空字串表示不在任何房間
	ConnectedAt time.Time

	// 未準備踢出計時器。計時器可能在取消之後才觸發，
	// 因此觸發路徑一律重新驗證狀態，從不假設取消一定及時。
	readyTimer *time.Timer
}

// SetReadyTimer 設置準備計時器，取代既有的計時器
func (c *Connection) SetReadyTimer(t *time.Timer) {
	c.ClearReadyTimer()
	c.readyTimer = t
}

// ClearReadyTimer 取消準備計時器
func (c *Connection) ClearReadyTimer() {
	if c.readyTimer != nil {
		c.readyTimer.Stop()
		c.readyTimer = nil
	}
}

// Registry 連線註冊表
//
// 將每條存活的傳輸會話對應到玩家的伺服端資料。
// 本身不做並發控制：所有變更都由 Core 的單一互斥鎖序列化。
type Registry struct {
	conns map[string]*Connection // sessionID -> Connection
}

// NewRegistry 創建連線註冊表
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
	}
}

// Register 登記新會話
func (r *Registry) Register(sess Session) *Connection {
	conn := &Connection{
		Session:     sess,
		DisplayName: DefaultDisplayName,
		ConnectedAt: time.Now(),
	}
	r.conns[sess.ID()] = conn
	return conn
}

// Get 查詢會話記錄
func (r *Registry) Get(sessionID string) (*Connection, bool) {
	conn, exists := r.conns[sessionID]
	return conn, exists
}

// SetDisplayName 設置暱稱，空值回退為預設
func (r *Registry) SetDisplayName(sessionID, name string) {
	conn, exists := r.conns[sessionID]
	if !exists {
		return
	}
	if name == "" {
		name = DefaultDisplayName
	}
	conn.DisplayName = name
}

// SetRoom 記錄會話所在的房間
func (r *Registry) SetRoom(sessionID, roomID string) {
	if conn, exists := r.conns[sessionID]; exists {
		conn.RoomID = roomID
	}
}

// Remove 移除會話記錄
//
// 先取消準備計時器再刪除：已排程的觸發仍可能發生，
// 觸發端以重新查詢狀態的方式保證對已移除會話是空操作。
func (r *Registry) Remove(sessionID string) {
	conn, exists := r.conns[sessionID]
	if !exists {
		return
	}
	conn.ClearReadyTimer()
	delete(r.conns, sessionID)
}

// Count 存活會話數
func (r *Registry) Count() int {
	return len(r.conns)
}

// All 回傳所有會話記錄（關機廣播用）
func (r *Registry) All() []*Connection {
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}
