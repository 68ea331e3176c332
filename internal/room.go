package internal

import (
	"slices"
	"time"
)

// 系統設計問題：
//   如何讓房間在玩家加入、離開、斷線、超時之間維持一致的狀態？
//
// 核心挑戰：
//   1. 成員順序：入座順序決定開局時的座位編號
//   2. 計時器歸屬：每個計時器都有唯一擁有者，前提失效時必須取消
//   3. 狀態互斥：倒數與延遲開局計時器同一時間最多存在一個
//
// 設計方案：
//   ✅ 有序切片保存成員 - 順序即座位
//   ✅ 集合保存準備/再戰投票 - 只含現任成員，離開即清除
//   ✅ 計時器句柄集中在 Room - 刪除房間時一次取消

// Room 遊戲房間
//
// 不變量：
//   - len(Players) 不超過容量上限，滿員後的加入一律拒絕
//   - 已開局的房間只在清空時刪除；未開局的房間一清空立即刪除
//   - countdownTimer 與 startDelayTimer 同時最多一個存在（倒數取代等待）
//   - aloneTimer 存在 ⟺ 恰好一名成員且尚未開局
//   - ReadyPlayers / RematchVotes 只含 Players 中的會話
type Room struct {
	ID          string
	Players     []string // sessionID，順序即入座順序
	IsPrivate   bool
	HostID      string // 創建者；只有私人房的房主能強制開局
	GameStarted bool
	CreatedAt   time.Time

	ReadyPlayers map[string]struct{}
	RematchVotes map[string]struct{}

	countdownTimer  *time.Timer
	countdownLeft   int
	startDelayTimer *time.Timer
	aloneTimer      *time.Timer
}

// NewRoom 創建房間，創建者為唯一成員兼房主
func NewRoom(id string, isPrivate bool, hostID string) *Room {
	return &Room{
		ID:           id,
		Players:      []string{hostID},
		IsPrivate:    isPrivate,
		HostID:       hostID,
		CreatedAt:    time.Now(),
		ReadyPlayers: make(map[string]struct{}),
		RematchVotes: make(map[string]struct{}),
	}
}

// PlayerCount 成員數
func (r *Room) PlayerCount() int {
	return len(r.Players)
}

// HasPlayer 是否為成員
func (r *Room) HasPlayer(sessionID string) bool {
	return slices.Contains(r.Players, sessionID)
}

// PlayerIndex 成員的座位索引，不在房內回傳 -1
func (r *Room) PlayerIndex(sessionID string) int {
	return slices.Index(r.Players, sessionID)
}

// AddPlayer 加入成員
func (r *Room) AddPlayer(sessionID string, maxPlayers int) error {
	if len(r.Players) >= maxPlayers {
		return ErrRoomFull
	}
	if r.HasPlayer(sessionID) {
		return nil // 冪等
	}
	r.Players = append(r.Players, sessionID)
	return nil
}

// RemovePlayer 移除成員，回傳其離開前的座位索引（不在房內回傳 -1）
//
// 離開者的準備狀態與再戰投票一併清除。房主離開時由最早加入者接任，
// 讓私人房不至於永遠無法開局。
func (r *Room) RemovePlayer(sessionID string) int {
	idx := r.PlayerIndex(sessionID)
	if idx < 0 {
		return -1
	}
	r.Players = slices.Delete(r.Players, idx, idx+1)
	delete(r.ReadyPlayers, sessionID)
	delete(r.RematchVotes, sessionID)

	if r.HostID == sessionID && len(r.Players) > 0 {
		r.HostID = r.Players[0]
	}
	return idx
}

// IsReady 成員是否已準備
func (r *Room) IsReady(sessionID string) bool {
	_, ready := r.ReadyPlayers[sessionID]
	return ready
}

// AllReady 是否所有現任成員都已準備
func (r *Room) AllReady() bool {
	return len(r.ReadyPlayers) == len(r.Players)
}

// HasVoted 成員是否已投再戰票
func (r *Room) HasVoted(sessionID string) bool {
	_, voted := r.RematchVotes[sessionID]
	return voted
}

// AllVoted 是否所有現任成員都已投再戰票
func (r *Room) AllVoted() bool {
	return len(r.RematchVotes) == len(r.Players)
}

// ResetForRematch 再戰重置
//
// 清空兩個投票集合。已開局狀態保持不變：房間直接進入新的一局，
// 不回到大廳，也不重新對公開配對開放。
func (r *Room) ResetForRematch() {
	clear(r.ReadyPlayers)
	clear(r.RematchVotes)
}

// InCountdown 倒數是否進行中
func (r *Room) InCountdown() bool {
	return r.countdownTimer != nil
}

// StartDelayArmed 延遲開局計時器是否掛上
func (r *Room) StartDelayArmed() bool {
	return r.startDelayTimer != nil
}

// AloneTimerArmed 單人房計時器是否掛上
func (r *Room) AloneTimerArmed() bool {
	return r.aloneTimer != nil
}

// CancelCountdown 取消倒數
func (r *Room) CancelCountdown() {
	if r.countdownTimer != nil {
		r.countdownTimer.Stop()
		r.countdownTimer = nil
	}
	r.countdownLeft = 0
}

// CancelStartDelay 取消延遲開局計時器
func (r *Room) CancelStartDelay() {
	if r.startDelayTimer != nil {
		r.startDelayTimer.Stop()
		r.startDelayTimer = nil
	}
}

// CancelAloneTimer 取消單人房計時器
func (r *Room) CancelAloneTimer() {
	if r.aloneTimer != nil {
		r.aloneTimer.Stop()
		r.aloneTimer = nil
	}
}

// CancelAllTimers 取消房間持有的全部計時器
//
// 刪除房間前必須呼叫，避免計時器對已消失的房間觸發。
func (r *Room) CancelAllTimers() {
	r.CancelCountdown()
	r.CancelStartDelay()
	r.CancelAloneTimer()
}
