package internal

import (
	"time"
)

// 系統設計問題：
//   超時驅動的狀態機如何容忍「取消了卻仍然觸發」的計時器？
//
// 核心挑戰：
//   1. 觸發與取消之間存在競態：Stop 不保證回呼尚未排入
//   2. 觸發時捕獲的狀態可能早已失效（房間刪除、成員離開、已開局）
//
// 設計方案：
//   ✅ 回呼只捕獲識別碼，觸發後重新上鎖、重新查詢、重新驗證前提
//   ✅ 前提不成立即空操作返回 - 過期觸發不是錯誤，是常態
//
// 狀態機：
//
//	Lobby → Countdown → InProgress → (再戰投票) → InProgress
//	  └───────────────────────────────────────────→ 清空即刪除

// armReadyTimer 掛上玩家的準備計時器
//
// 觸發時玩家仍未準備且房間尚未開局，即踢出。玩家宣告準備或
// 房間開局時取消。
func (c *Core) armReadyTimer(conn *Connection) {
	sessionID := conn.Session.ID()
	conn.SetReadyTimer(time.AfterFunc(c.cfg.Game.ReadyTimeout, func() {
		c.onReadyTimeout(sessionID)
	}))
}

func (c *Core) onReadyTimeout(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, exists := c.registry.Get(sessionID)
	if !exists || conn.RoomID == "" {
		return
	}
	room, found := c.rooms.Get(conn.RoomID)
	if !found || room.GameStarted || room.IsReady(sessionID) {
		return
	}

	c.logger.Info("玩家逾時未準備", "room_id", room.ID, "session_id", sessionID)
	c.kick(conn, KickReasonReadyTimeout)
}

// syncAloneTimer 依不變量重整單人房計時器
//
// 恰好一名成員且尚未開局 → 計時器存在；其他情況 → 取消。
// 成員變動後的每條路徑都呼叫這裡。
func (c *Core) syncAloneTimer(room *Room) {
	alone := room.PlayerCount() == 1 && !room.GameStarted
	if !alone {
		room.CancelAloneTimer()
		return
	}
	if room.AloneTimerArmed() {
		return
	}
	roomID := room.ID
	room.aloneTimer = time.AfterFunc(c.cfg.Game.AloneTimeout, func() {
		c.onAloneTimeout(roomID)
	})
}

func (c *Core) onAloneTimeout(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, found := c.rooms.Get(roomID)
	if !found || room.GameStarted || room.PlayerCount() != 1 {
		return
	}
	conn, exists := c.registry.Get(room.Players[0])
	if !exists {
		return
	}

	c.logger.Info("單人房逾時", "room_id", roomID, "session_id", conn.Session.ID())
	c.kick(conn, KickReasonAlone)
}

// armStartDelay 公開房的延遲開局計時器
//
// 第二位玩家到位後掛上；觸發時房間仍在大廳且達最低人數，
// 即進入倒數。倒數一旦開始即取消（兩者互斥）。
func (c *Core) armStartDelay(room *Room) {
	roomID := room.ID
	room.startDelayTimer = time.AfterFunc(c.cfg.Game.StartDelay, func() {
		c.onStartDelay(roomID)
	})
}

func (c *Core) onStartDelay(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, found := c.rooms.Get(roomID)
	if !found {
		return
	}
	room.startDelayTimer = nil
	if room.GameStarted || room.InCountdown() || room.PlayerCount() < c.cfg.Game.MinPlayers {
		return
	}
	c.startCountdown(room)
}

// startCountdown 進入倒數
//
// 三條路徑在此收斂：滿員短路、全員準備、延遲開局觸發
// （私人房另有房主強制開局）。誰先到誰生效，重複進入是空操作。
func (c *Core) startCountdown(room *Room) {
	if room.InCountdown() || room.GameStarted {
		return
	}
	room.CancelStartDelay()

	room.countdownLeft = c.cfg.Game.CountdownFrom
	c.broadcast(room, CountdownMessage{Type: MsgCountdown, Countdown: room.countdownLeft})

	roomID := room.ID
	room.countdownTimer = time.AfterFunc(c.cfg.Game.CountdownInterval, func() {
		c.onCountdownTick(roomID)
	})

	c.logger.Info("開始倒數", "room_id", room.ID, "from", room.countdownLeft)
}

// onCountdownTick 倒數節拍
//
// 每秒廣播剩餘秒數，數到零即開局。倒數可能在節拍之間被取消
// （成員掉到最低人數以下），因此每拍都重新驗證。
func (c *Core) onCountdownTick(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, found := c.rooms.Get(roomID)
	if !found || !room.InCountdown() || room.GameStarted {
		return
	}

	room.countdownLeft--
	if room.countdownLeft > 0 {
		c.broadcast(room, CountdownMessage{Type: MsgCountdown, Countdown: room.countdownLeft})
		room.countdownTimer = time.AfterFunc(c.cfg.Game.CountdownInterval, func() {
			c.onCountdownTick(roomID)
		})
		return
	}

	room.CancelCountdown()
	c.startGameNow(room)
}

// startGameNow 開局
//
// 大廳階段的計時器全部失效：單人計時器與每位成員的準備計時器
// 一併取消。座位編號為此刻的入座順序，開局訊息逐一附上
// 收件者自己的座位。
func (c *Core) startGameNow(room *Room) {
	room.GameStarted = true
	room.CancelAllTimers()

	players := make([]GamePlayer, 0, room.PlayerCount())
	for i, memberID := range room.Players {
		name := DefaultDisplayName
		if member, exists := c.registry.Get(memberID); exists {
			name = member.DisplayName
			member.ClearReadyTimer()
		}
		players = append(players, GamePlayer{ID: memberID, Name: name, PlayerIndex: i})
	}

	for i, memberID := range room.Players {
		member, exists := c.registry.Get(memberID)
		if !exists || !member.Session.IsOpen() {
			continue
		}
		member.Session.Send(GameStartMessage{
			Type:          MsgGameStart,
			RoomID:        room.ID,
			Players:       players,
			MyPlayerIndex: i,
		})
	}

	c.logger.Info("遊戲開始", "room_id", room.ID, "players", room.PlayerCount())
}

// finishRematch 全員投完再戰票
//
// 清空投票並通知重開。客戶端被信任直接進入新的一局，不重走
// 大廳與倒數；房間保持已開局狀態，配對掃描繼續略過它，
// 大廳階段的計時器也都不適用。
func (c *Core) finishRematch(room *Room) {
	room.ResetForRematch()
	c.broadcast(room, RematchStartMessage{Type: MsgRematchStart})

	c.logger.Info("再戰開始", "room_id", room.ID, "players", room.PlayerCount())
}

// kick 踢出玩家
//
// 先送出附原因的通知並移出房間，寬限一秒讓通知送達後
// 強制斷線；斷線事件回到 HandleClose 完成註冊表清理。
func (c *Core) kick(conn *Connection, reason string) {
	sess := conn.Session
	sess.Send(KickedMessage{Type: MsgKicked, Reason: reason})
	c.removeFromRoom(conn)

	time.AfterFunc(c.cfg.Game.KickGrace, func() {
		sess.Close()
	})
}

// janitorLoop 定期清掃
//
// 驅逐過老、含殭屍會話或空的房間。單純的不活躍不在清掃範圍，
// 那是準備／單人計時器的職責。
func (c *Core) janitorLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Game.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}

// Sweep 執行一輪清掃（公開供測試使用）
func (c *Core) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, room := range c.rooms.Rooms() {
		switch {
		case room.PlayerCount() == 0:
			c.rooms.Delete(room.ID)
		case now.Sub(room.CreatedAt) > c.cfg.Game.RoomMaxAge:
			c.evictRoom(room)
		case c.hasZombieMember(room):
			c.evictRoom(room)
		}
	}
}

// hasZombieMember 房間是否含有傳輸會話已消失或關閉的成員
func (c *Core) hasZombieMember(room *Room) bool {
	for _, memberID := range room.Players {
		member, exists := c.registry.Get(memberID)
		if !exists || !member.Session.IsOpen() {
			return true
		}
	}
	return false
}

// evictRoom 驅逐整個房間
func (c *Core) evictRoom(room *Room) {
	c.logger.Info("清掃驅逐房間", "room_id", room.ID, "players", room.PlayerCount())

	for _, memberID := range room.Players {
		member, exists := c.registry.Get(memberID)
		if !exists {
			continue
		}
		member.ClearReadyTimer()
		c.registry.SetRoom(memberID, "")
		if member.Session.IsOpen() {
			member.Session.Send(KickedMessage{Type: MsgKicked, Reason: KickReasonRoomExpired})
		}
	}
	room.Players = room.Players[:0]
	c.rooms.Delete(room.ID)
}
