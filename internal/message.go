package internal

import (
	"encoding/json"
	"errors"
)

// 錯誤分類：
//   - ErrRoomNotFound / ErrRoomTaken 對應 roomInvalid 回覆
//   - ErrRoomFull 對應 roomFull 回覆
//
// 所有錯誤都只回報給發起操作的會話，絕不影響其他房間或中斷進程。
var (
	ErrRoomNotFound = errors.New("房間不存在")
	ErrRoomTaken    = errors.New("房號已被使用")
	ErrRoomFull     = errors.New("房間已滿")
)

// 入站訊息類型（封閉集合）
//
// 未知類型記錄日誌後丟棄，不視為錯誤。
const (
	MsgJoinPublic    = "joinPublic"
	MsgCreatePrivate = "createPrivate"
	MsgJoinPrivate   = "joinPrivate"
	MsgGameAction    = "gameAction"
	MsgPlayerReady   = "playerReady"
	MsgStartGame     = "startGame"
	MsgRematchVote   = "rematchVote"
	MsgLeaveRoom     = "leaveRoom"
)

// 出站訊息類型
const (
	MsgConnected          = "connected"
	MsgRoomCreated        = "roomCreated"
	MsgRoomInvalid        = "roomInvalid"
	MsgRoomFull           = "roomFull"
	MsgRoomUpdate         = "roomUpdate"
	MsgCountdown          = "countdown"
	MsgGameStart          = "gameStart"
	MsgPlayerLeft         = "playerLeft"
	MsgPlayerDisconnected = "playerDisconnected"
	MsgRematchUpdate      = "rematchUpdate"
	MsgRematchStart       = "rematchStart"
	MsgKicked             = "kicked"
	MsgServerShutdown     = "serverShutdown"
)

// InboundMessage 入站訊息封包
//
// 所有欄位是各類型所需欄位的聯集，依 Type 取用。
// Action 是不透明的遊戲動作負載，伺服器原樣轉發、不做任何解讀。
type InboundMessage struct {
	Type        string          `json:"type"`
	DisplayName string          `json:"displayName,omitempty"`
	RoomID      string          `json:"roomId,omitempty"`
	Action      json.RawMessage `json:"action,omitempty"`
}

// PlayerSummary roomUpdate 中的成員資訊
type PlayerSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

// GamePlayer gameStart 中的座位名單，順序即入座順序
type GamePlayer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerIndex int    `json:"playerIndex"`
}

// RematchSummary rematchUpdate 中的投票狀態
type RematchSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Rematch bool   `json:"rematch"`
}

// 出站訊息。每個訊息都帶 type 標籤，客戶端依此分派。
type ConnectedMessage struct {
	Type string `json:"type"`
}

type RoomCreatedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type RoomInvalidMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type RoomFullMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// RoomUpdateMessage 房間狀態廣播
//
// IsHost 依收件者而異，因此每位成員收到的是各自組裝的訊息。
type RoomUpdateMessage struct {
	Type       string          `json:"type"`
	RoomID     string          `json:"roomId"`
	Players    []PlayerSummary `json:"players"`
	IsPrivate  bool            `json:"isPrivate"`
	IsHost     bool            `json:"isHost"`
	MinPlayers int             `json:"minPlayers"`
}

type CountdownMessage struct {
	Type      string `json:"type"`
	Countdown int    `json:"countdown"`
}

// GameStartMessage 開局訊息，MyPlayerIndex 依收件者而異
type GameStartMessage struct {
	Type          string       `json:"type"`
	RoomID        string       `json:"roomId"`
	Players       []GamePlayer `json:"players"`
	MyPlayerIndex int          `json:"myPlayerIndex"`
}

type GameActionMessage struct {
	Type   string          `json:"type"`
	Action json.RawMessage `json:"action"`
}

type PlayerLeftMessage struct {
	Type             string `json:"type"`
	PlayerIndex      int    `json:"playerIndex"`
	PlayersRemaining int    `json:"playersRemaining"`
}

type PlayerDisconnectedMessage struct {
	Type             string `json:"type"`
	PlayersRemaining int    `json:"playersRemaining"`
}

type RematchUpdateMessage struct {
	Type    string           `json:"type"`
	RoomID  string           `json:"roomId"`
	Players []RematchSummary `json:"players"`
}

type RematchStartMessage struct {
	Type string `json:"type"`
}

type KickedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ServerShutdownMessage struct {
	Type string `json:"type"`
}
