package internal

import "time"

// Config 服務配置
//
// 所有時間參數都可以透過設定檔覆寫，預設值即為產品規格。
// 測試時注入毫秒級的時間參數，避免等待真實的超時。
type Config struct {
	// HTTP 服務配置
	Server ServerConfig `yaml:"server"`

	// 遊戲房間配置
	Game GameConfig `yaml:"game"`

	// 日誌配置
	Log LogConfig `yaml:"log"`
}

// ServerConfig HTTP 服務配置
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig 日誌配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// GameConfig 房間生命週期配置
//
// 超時設計：
//   - StartDelay：公開房第二位玩家加入後，等待 60 秒自動進入倒數
//   - ReadyTimeout：玩家加入後 10 分鐘未準備即踢出
//   - AloneTimeout：單人房 5 分鐘無人加入即踢出
//   - KickGrace：踢出通知送出後延遲 1 秒才斷線，讓通知有機會送達
type GameConfig struct {
	MinPlayers int `yaml:"min_players"` // 開局最少人數
	MaxPlayers int `yaml:"max_players"` // 房間容量上限

	StartDelay        time.Duration `yaml:"start_delay"`
	CountdownFrom     int           `yaml:"countdown_from"`
	CountdownInterval time.Duration `yaml:"countdown_interval"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	AloneTimeout      time.Duration `yaml:"alone_timeout"`
	KickGrace         time.Duration `yaml:"kick_grace"`

	JanitorInterval time.Duration `yaml:"janitor_interval"`
	RoomMaxAge      time.Duration `yaml:"room_max_age"`

	RoomCodeLength int `yaml:"room_code_length"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Game: GameConfig{
			MinPlayers:        2,
			MaxPlayers:        4,
			StartDelay:        60 * time.Second,
			CountdownFrom:     5,
			CountdownInterval: 1 * time.Second,
			ReadyTimeout:      10 * time.Minute,
			AloneTimeout:      5 * time.Minute,
			KickGrace:         1 * time.Second,
			JanitorInterval:   60 * time.Second,
			RoomMaxAge:        1 * time.Hour,
			RoomCodeLength:    4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
