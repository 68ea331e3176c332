package internal_test

import (
	"testing"
	"time"

	"github.com/GraphicHealer/Websocket-KingInTheCorner/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSweep_EvictsExpiredRoom 超齡房間整間驅逐
func TestSweep_EvictsExpiredRoom(t *testing.T) {
	core := newTestCore(t, func(cfg *internal.Config) {
		cfg.Game.RoomMaxAge = time.Hour
	})
	sessions := fillPublicRoom(t, core, 2)

	room, exists := core.Room(roomIDOf(t, sessions[0]))
	require.True(t, exists)
	room.CreatedAt = time.Now().Add(-2 * time.Hour)

	core.Sweep()

	assert.Empty(t, core.Rooms())
	for _, sess := range sessions {
		msg, ok := sess.lastOfType("kicked")
		require.True(t, ok)
		assert.Equal(t, "Room expired", msg.(internal.KickedMessage).Reason)
	}

	// 被驅逐者可以立即重新配對
	joinPublic(t, core, sessions[0], "回鍋玩家")
	require.Len(t, core.Rooms(), 1)
}

// TestSweep_EvictsZombieRoom 含已死會話的房間整間驅逐
//
// 傳輸層漏報關閉事件時（HandleClose 從未被呼叫），
// 清掃是最後一道防線。
func TestSweep_EvictsZombieRoom(t *testing.T) {
	core := newTestCore(t, nil)
	sessions := fillPublicRoom(t, core, 3)

	sessions[2].Close() // 會話死了，但沒有任何人通知核心

	core.Sweep()

	assert.Empty(t, core.Rooms())
	msg, ok := sessions[0].lastOfType("kicked")
	require.True(t, ok)
	assert.Equal(t, "Room expired", msg.(internal.KickedMessage).Reason)
}

// TestSweep_LeavesHealthyRoomAlone 健康房間不受清掃影響
func TestSweep_LeavesHealthyRoomAlone(t *testing.T) {
	core := newTestCore(t, nil)
	sessions := fillPublicRoom(t, core, 2)
	roomID := roomIDOf(t, sessions[0])

	core.Sweep()
	core.Sweep()

	room, exists := core.Room(roomID)
	require.True(t, exists)
	assert.Equal(t, 2, room.PlayerCount())
	assert.Zero(t, sessions[0].countOfType("kicked"))
}

// TestSweep_GameInProgressWithLiveMembers 進行中的對局只要成員都活著就保留
func TestSweep_GameInProgressWithLiveMembers(t *testing.T) {
	core := newTestCore(t, nil)
	sessions := fillPublicRoom(t, core, 4)
	require.Eventually(t, func() bool {
		return sessions[0].countOfType("gameStart") == 1
	}, waitFor, tick)

	core.Sweep()

	require.Len(t, core.Rooms(), 1)
	assert.True(t, core.Rooms()[0].GameStarted)
}
