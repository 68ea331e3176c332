package internal

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
)

// 房號字符集。大寫字母加數字，方便口頭轉述與手動輸入。
const roomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// 房號碰撞時的重試上限。四碼空間約 168 萬，存活房間數遠小於此，
// 連續撞滿代表亂數源異常，直接回報失敗。
const maxCodeAttempts = 16

// RoomStore 房間存放區
//
// 擁有房間的創建、成員變動與刪除。除了主索引之外另外維護創建順序，
// 因為配對掃描要求在單次處理內具決定性，而 map 的迭代順序是隨機的。
type RoomStore struct {
	rooms      map[string]*Room
	order      []string // roomID，創建順序
	codeLength int
	logger     *slog.Logger
}

// NewRoomStore 創建房間存放區
func NewRoomStore(codeLength int, logger *slog.Logger) *RoomStore {
	return &RoomStore{
		rooms:      make(map[string]*Room),
		codeLength: codeLength,
		logger:     logger,
	}
}

// Get 查詢房間
func (s *RoomStore) Get(roomID string) (*Room, bool) {
	room, exists := s.rooms[roomID]
	return room, exists
}

// Count 房間數
func (s *RoomStore) Count() int {
	return len(s.rooms)
}

// Rooms 依創建順序回傳所有房間
func (s *RoomStore) Rooms() []*Room {
	rooms := make([]*Room, 0, len(s.order))
	for _, id := range s.order {
		if room, exists := s.rooms[id]; exists {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

// CreatePublic 創建公開房，創建者為唯一成員兼房主
func (s *RoomStore) CreatePublic(hostID string) (*Room, error) {
	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}
	room := NewRoom(code, false, hostID)
	s.insert(room)

	s.logger.Info("公開房已創建", "room_id", code, "host", hostID)
	return room, nil
}

// CreatePrivate 創建私人房
//
// requestedID 為空時自動生成房號；指定的房號已被占用時回報 ErrRoomTaken。
func (s *RoomStore) CreatePrivate(hostID, requestedID string) (*Room, error) {
	code := NormalizeRoomID(requestedID)
	if code == "" {
		generated, err := s.generateCode()
		if err != nil {
			return nil, err
		}
		code = generated
	} else if _, exists := s.rooms[code]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRoomTaken, code)
	}

	room := NewRoom(code, true, hostID)
	s.insert(room)

	s.logger.Info("私人房已創建", "room_id", code, "host", hostID)
	return room, nil
}

// FindJoinable 查詢仍可加入的房間
//
// 不存在或已開局都回報 ErrRoomNotFound：進行中的對局不能中途插入，
// 對外等同房間不存在。
func (s *RoomStore) FindJoinable(roomID string) (*Room, error) {
	room, exists := s.rooms[roomID]
	if !exists || room.GameStarted {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return room, nil
}

// FindPublicRoom 配對掃描
//
// 依創建順序找第一個未開局、未滿員的公開房。先到先得即可，
// 不要求負載均衡。
func (s *RoomStore) FindPublicRoom(maxPlayers int) *Room {
	for _, id := range s.order {
		room, exists := s.rooms[id]
		if !exists {
			continue
		}
		if !room.IsPrivate && !room.GameStarted && room.PlayerCount() < maxPlayers {
			return room
		}
	}
	return nil
}

// Delete 刪除房間，先取消其持有的全部計時器
func (s *RoomStore) Delete(roomID string) {
	room, exists := s.rooms[roomID]
	if !exists {
		return
	}
	room.CancelAllTimers()
	delete(s.rooms, roomID)

	for i, id := range s.order {
		if id == roomID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.logger.Info("房間已移除", "room_id", roomID)
}

// WaitingPlayers 公開佇列長度：未開局公開房中的玩家總數
func (s *RoomStore) WaitingPlayers() int {
	total := 0
	for _, room := range s.rooms {
		if !room.IsPrivate && !room.GameStarted {
			total += room.PlayerCount()
		}
	}
	return total
}

// insert 登記房間並記錄創建順序
func (s *RoomStore) insert(room *Room) {
	s.rooms[room.ID] = room
	s.order = append(s.order, room.ID)
}

// generateCode 生成在現存房間中唯一的房號，碰撞即重新生成
func (s *RoomStore) generateCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		b := make([]byte, s.codeLength)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("生成房號失敗: %w", err)
		}
		for i := range b {
			b[i] = roomCodeChars[int(b[i])%len(roomCodeChars)]
		}
		code := string(b)
		if _, exists := s.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("生成房號失敗: 重試 %d 次仍碰撞", maxCodeAttempts)
}

// NormalizeRoomID 房號正規化：去空白並轉大寫，查找前一律套用
func NormalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}
