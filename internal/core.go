package internal

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   如何在玩家隨時加入、離開、斷線的情況下，保證房間簿記永遠一致？
//
// 核心挑戰：
//   1. 並發模型：入站訊息、計時器觸發、連線關閉來自不同 goroutine
//   2. 過期觸發：計時器可能在前提失效後才觸發
//   3. 廣播副作用：每次狀態變動都要推送給所有受影響的成員
//
// 設計方案：
//   ✅ 單一互斥鎖序列化所有狀態變更 - 等價於單執行緒事件迴圈
//   ✅ 計時器回呼重新上鎖、重新驗證 - 絕不信任觸發時捕獲的狀態
//   ✅ 發送即忘 - 只對仍開啟的會話發送，從不阻塞

// Session 傳輸層會話
//
// 核心透過這個介面與傳輸層互動：Send 是發送即忘，會話已關閉時
// 靜默丟棄；Close 觸發傳輸層的關閉事件，最終回到 HandleClose。
type Session interface {
	ID() string
	Send(v any)
	Close()
	IsOpen() bool
}

// 踢出原因。alone 的字面值是對外協議的一部分。
const (
	KickReasonAlone        = "No other players joined"
	KickReasonReadyTimeout = "Took too long to ready up"
	KickReasonRoomExpired  = "Room expired"
)

// Core 中繼調度器
//
// 將入站訊息分派到對應的操作，變更 Registry 與 RoomStore，
// 並觸發生命週期轉換。所有狀態變更都在 mu 之下進行，
// 任兩個變更絕不並發，因此各存放區本身不需要鎖。
type Core struct {
	mu        sync.Mutex
	cfg       *Config
	logger    *slog.Logger
	registry  *Registry
	rooms     *RoomStore
	startedAt time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCore 創建中繼調度器並啟動清掃 goroutine
func NewCore(cfg *Config, logger *slog.Logger) *Core {
	c := &Core{
		cfg:       cfg,
		logger:    logger,
		registry:  NewRegistry(),
		rooms:     NewRoomStore(cfg.Game.RoomCodeLength, logger),
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.janitorLoop()

	return c
}

// HandleOpen 會話建立
func (c *Core) HandleOpen(sess Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Register(sess)
	sess.Send(ConnectedMessage{Type: MsgConnected})

	c.logger.Info("會話建立", "session_id", sess.ID())
}

// HandleClose 會話關閉（正常或異常）
//
// 踢出流程最後的強制斷線也會走到這裡；屆時會話早已移出房間，
// 各步驟都以重新查詢的方式容忍重複進入。
func (c *Core) HandleClose(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, exists := c.registry.Get(sessionID)
	if !exists {
		return
	}

	c.removeFromRoom(conn)
	c.registry.Remove(sessionID)

	c.logger.Info("會話關閉", "session_id", sessionID)
}

// HandleMessage 入站訊息分派
//
// 無法解析或缺少類型的訊息記錄日誌後丟棄，絕不讓調度器崩潰。
func (c *Core) HandleMessage(sess Session, raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		c.logger.Warn("丟棄無法解析的訊息", "session_id", sess.ID(), "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case MsgJoinPublic:
		c.joinPublic(sess, msg.DisplayName)
	case MsgCreatePrivate:
		c.createPrivate(sess, msg.RoomID, msg.DisplayName)
	case MsgJoinPrivate:
		c.joinPrivate(sess, msg.RoomID, msg.DisplayName)
	case MsgGameAction:
		c.gameAction(sess, msg.Action)
	case MsgPlayerReady:
		c.playerReady(sess)
	case MsgStartGame:
		c.startGame(sess)
	case MsgRematchVote:
		c.rematchVote(sess)
	case MsgLeaveRoom:
		c.leaveRoom(sess)
	default:
		c.logger.Debug("未知的訊息類型", "type", msg.Type, "session_id", sess.ID())
	}
}

// joinPublic 公開配對
//
// 掃描現存公開房，找不到就創建新房。配對後立即擁有房間，
// 不存在「在佇列中但無房」的中間狀態。
func (c *Core) joinPublic(sess Session, displayName string) {
	conn, exists := c.registry.Get(sess.ID())
	if !exists || conn.RoomID != "" {
		return
	}
	c.registry.SetDisplayName(sess.ID(), displayName)

	room := c.rooms.FindPublicRoom(c.cfg.Game.MaxPlayers)
	if room == nil {
		created, err := c.rooms.CreatePublic(sess.ID())
		if err != nil {
			c.logger.Error("創建公開房失敗", "error", err)
			sess.Send(RoomInvalidMessage{Type: MsgRoomInvalid})
			return
		}
		c.registry.SetRoom(sess.ID(), created.ID)
		c.setupLobbyTimers(conn, created)
		c.broadcastRoomUpdate(created)
		return
	}

	if err := room.AddPlayer(sess.ID(), c.cfg.Game.MaxPlayers); err != nil {
		// 掃描排除了滿員房，走到這裡代表掃描與加入之間狀態被改動
		sess.Send(RoomFullMessage{Type: MsgRoomFull, RoomID: room.ID})
		return
	}
	c.registry.SetRoom(sess.ID(), room.ID)
	c.logger.Info("玩家加入公開房", "room_id", room.ID, "session_id", sess.ID(), "players", room.PlayerCount())

	// 滿員直接進入倒數，跳過延遲等待，也不再發房間狀態廣播。
	// 倒數已在進行時（配對掃描不排除倒數中的房間）照常走大廳路徑，
	// 新成員會收到後續的倒數節拍。
	if room.PlayerCount() == c.cfg.Game.MaxPlayers && !room.InCountdown() {
		room.CancelAloneTimer()
		c.armReadyTimer(conn)
		c.startCountdown(room)
		return
	}

	c.setupLobbyTimers(conn, room)
	c.broadcastRoomUpdate(room)
}

// createPrivate 創建私人房
func (c *Core) createPrivate(sess Session, requestedID, displayName string) {
	conn, exists := c.registry.Get(sess.ID())
	if !exists || conn.RoomID != "" {
		return
	}
	c.registry.SetDisplayName(sess.ID(), displayName)

	room, err := c.rooms.CreatePrivate(sess.ID(), requestedID)
	if err != nil {
		sess.Send(RoomInvalidMessage{Type: MsgRoomInvalid, RoomID: NormalizeRoomID(requestedID)})
		return
	}
	c.registry.SetRoom(sess.ID(), room.ID)

	sess.Send(RoomCreatedMessage{Type: MsgRoomCreated, RoomID: room.ID})
	c.setupLobbyTimers(conn, room)
	c.broadcastRoomUpdate(room)
}

// joinPrivate 以房號加入私人房
func (c *Core) joinPrivate(sess Session, roomID, displayName string) {
	conn, exists := c.registry.Get(sess.ID())
	if !exists || conn.RoomID != "" {
		return
	}
	c.registry.SetDisplayName(sess.ID(), displayName)

	code := NormalizeRoomID(roomID)
	room, err := c.rooms.FindJoinable(code)
	if err != nil {
		sess.Send(RoomInvalidMessage{Type: MsgRoomInvalid, RoomID: code})
		return
	}
	if err := room.AddPlayer(sess.ID(), c.cfg.Game.MaxPlayers); err != nil {
		sess.Send(RoomFullMessage{Type: MsgRoomFull, RoomID: code})
		return
	}
	c.registry.SetRoom(sess.ID(), room.ID)
	c.logger.Info("玩家加入私人房", "room_id", room.ID, "session_id", sess.ID(), "players", room.PlayerCount())

	c.setupLobbyTimers(conn, room)
	c.broadcastRoomUpdate(room)
}

// gameAction 轉發遊戲動作
//
// 負載不透明，原樣轉發給發送者以外所有仍開啟的成員。
// 伺服器不解讀、不驗證遊戲規則。
func (c *Core) gameAction(sess Session, action json.RawMessage) {
	room := c.roomOf(sess.ID())
	if room == nil {
		return
	}
	msg := GameActionMessage{Type: MsgGameAction, Action: action}
	for _, memberID := range room.Players {
		if memberID == sess.ID() {
			continue
		}
		if member, exists := c.registry.Get(memberID); exists && member.Session.IsOpen() {
			member.Session.Send(msg)
		}
	}
}

// playerReady 玩家宣告準備
func (c *Core) playerReady(sess Session) {
	conn, exists := c.registry.Get(sess.ID())
	if !exists {
		return
	}
	room := c.roomOf(sess.ID())
	if room == nil || room.GameStarted {
		return
	}

	room.ReadyPlayers[sess.ID()] = struct{}{}
	conn.ClearReadyTimer()

	// 公開房全員準備且達最低人數即進入倒數；私人房只認房主的開局指令
	if !room.IsPrivate && !room.InCountdown() &&
		room.PlayerCount() >= c.cfg.Game.MinPlayers && room.AllReady() {
		c.startCountdown(room)
		return
	}

	c.broadcastRoomUpdate(room)
}

// startGame 私人房房主強制開局
//
// 請求者不是房主、低於最低人數、房間是公開房、已開局或已在倒數，
// 一律靜默忽略。
func (c *Core) startGame(sess Session) {
	room := c.roomOf(sess.ID())
	if room == nil || !room.IsPrivate || room.HostID != sess.ID() ||
		room.GameStarted || room.InCountdown() ||
		room.PlayerCount() < c.cfg.Game.MinPlayers {
		return
	}
	c.startCountdown(room)
}

// rematchVote 再戰投票
//
// 僅在開局後受理；重複投票只計一次。全員投完即重置房間並通知重開。
func (c *Core) rematchVote(sess Session) {
	room := c.roomOf(sess.ID())
	if room == nil || !room.GameStarted {
		return
	}

	room.RematchVotes[sess.ID()] = struct{}{}

	if room.AllVoted() {
		c.finishRematch(room)
		return
	}
	c.broadcastRematchUpdate(room)
}

// leaveRoom 明確離開房間
func (c *Core) leaveRoom(sess Session) {
	conn, exists := c.registry.Get(sess.ID())
	if !exists {
		return
	}
	c.removeFromRoom(conn)
}

// roomOf 查詢會話所在的房間
func (c *Core) roomOf(sessionID string) *Room {
	conn, exists := c.registry.Get(sessionID)
	if !exists || conn.RoomID == "" {
		return nil
	}
	room, found := c.rooms.Get(conn.RoomID)
	if !found {
		return nil
	}
	return room
}

// setupLobbyTimers 加入大廳後的計時器整備
//
// 每位新成員掛上準備計時器；單人房掛上獨守計時器，脫離單人
// 條件即取消；公開房第二人到位後掛上延遲開局計時器。
func (c *Core) setupLobbyTimers(conn *Connection, room *Room) {
	c.armReadyTimer(conn)
	c.syncAloneTimer(room)

	if !room.IsPrivate && !room.InCountdown() &&
		room.PlayerCount() >= c.cfg.Game.MinPlayers && !room.StartDelayArmed() {
		c.armStartDelay(room)
	}
}

// removeFromRoom 集中式的退房處理
//
// 所有離開路徑（明確離開、斷線、踢出、清掃驅逐）都經過這裡：
// 取消離開者的準備計時器、清除其投票、通知留下的成員、
// 重整單人計時器，房間清空即刪除。
func (c *Core) removeFromRoom(conn *Connection) {
	if conn.RoomID == "" {
		return
	}
	roomID := conn.RoomID
	c.registry.SetRoom(conn.Session.ID(), "")
	conn.ClearReadyTimer()

	room, found := c.rooms.Get(roomID)
	if !found {
		return
	}
	idx := room.RemovePlayer(conn.Session.ID())
	if idx < 0 {
		return
	}

	if room.PlayerCount() == 0 {
		// 未開局的房間一清空立即刪除；已開局的房間也只在此時刪除
		c.rooms.Delete(roomID)
		return
	}

	if room.GameStarted {
		c.broadcast(room, PlayerLeftMessage{
			Type:             MsgPlayerLeft,
			PlayerIndex:      idx,
			PlayersRemaining: room.PlayerCount(),
		})
		// 再戰投票進行中：離開者的票已清除，重新檢查與通報票數
		if len(room.RematchVotes) > 0 {
			if room.AllVoted() {
				c.finishRematch(room)
			} else {
				c.broadcastRematchUpdate(room)
			}
		}
		return
	}

	c.broadcast(room, PlayerDisconnectedMessage{
		Type:             MsgPlayerDisconnected,
		PlayersRemaining: room.PlayerCount(),
	})

	// 低於最低人數後，等待與倒數的前提都不再成立
	if room.PlayerCount() < c.cfg.Game.MinPlayers {
		room.CancelStartDelay()
		room.CancelCountdown()
	}
	c.syncAloneTimer(room)
	c.broadcastRoomUpdate(room)
}

// broadcast 對房間所有仍開啟的成員發送同一則訊息
func (c *Core) broadcast(room *Room, v any) {
	for _, memberID := range room.Players {
		if member, exists := c.registry.Get(memberID); exists && member.Session.IsOpen() {
			member.Session.Send(v)
		}
	}
}

// broadcastRoomUpdate 房間狀態廣播
//
// 每次成員或準備狀態變動後發送。isHost 依收件者而異，
// 逐一組裝訊息。
func (c *Core) broadcastRoomUpdate(room *Room) {
	players := make([]PlayerSummary, 0, room.PlayerCount())
	for _, memberID := range room.Players {
		name := DefaultDisplayName
		if member, exists := c.registry.Get(memberID); exists {
			name = member.DisplayName
		}
		players = append(players, PlayerSummary{
			ID:    memberID,
			Name:  name,
			Ready: room.IsReady(memberID),
		})
	}

	for _, memberID := range room.Players {
		member, exists := c.registry.Get(memberID)
		if !exists || !member.Session.IsOpen() {
			continue
		}
		member.Session.Send(RoomUpdateMessage{
			Type:       MsgRoomUpdate,
			RoomID:     room.ID,
			Players:    players,
			IsPrivate:  room.IsPrivate,
			IsHost:     room.HostID == memberID,
			MinPlayers: c.cfg.Game.MinPlayers,
		})
	}
}

// broadcastRematchUpdate 再戰票數通報
func (c *Core) broadcastRematchUpdate(room *Room) {
	players := make([]RematchSummary, 0, room.PlayerCount())
	for _, memberID := range room.Players {
		name := DefaultDisplayName
		if member, exists := c.registry.Get(memberID); exists {
			name = member.DisplayName
		}
		players = append(players, RematchSummary{
			ID:      memberID,
			Name:    name,
			Rematch: room.HasVoted(memberID),
		})
	}
	c.broadcast(room, RematchUpdateMessage{
		Type:    MsgRematchUpdate,
		RoomID:  room.ID,
		Players: players,
	})
}

// Room 查詢房間（測試與監控使用）
func (c *Core) Room(roomID string) (*Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.Get(roomID)
}

// Rooms 依創建順序回傳所有房間（測試與監控使用）
func (c *Core) Rooms() []*Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.Rooms()
}

// Stats 服務統計快照
type Stats struct {
	Connections   int   `json:"connections"`
	Queue         int   `json:"queue"`
	Rooms         int   `json:"rooms"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// Snapshot 讀取統計快照（狀態端點用）
func (c *Core) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Connections:   c.registry.Count(),
		Queue:         c.rooms.WaitingPlayers(),
		Rooms:         c.rooms.Count(),
		UptimeSeconds: int64(time.Since(c.startedAt).Seconds()),
	}
}

// Stop 停止調度器
//
// 向所有存活會話廣播關機通知，停止清掃，取消所有計時器。
// 傳輸層的實際斷線由呼叫端在寬限期後執行。
func (c *Core) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	shutdown := ServerShutdownMessage{Type: MsgServerShutdown}
	for _, conn := range c.registry.All() {
		if conn.Session.IsOpen() {
			conn.Session.Send(shutdown)
		}
		conn.ClearReadyTimer()
	}
	for _, room := range c.rooms.Rooms() {
		room.CancelAllTimers()
	}

	c.logger.Info("中繼調度器已停止")
}
