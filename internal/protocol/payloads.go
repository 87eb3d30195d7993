package protocol

// --- 客户端请求 Payloads ---

// PingPayload 心跳请求
type PingPayload struct {
	Timestamp int64 `json:"timestamp"` // 客户端时间戳（毫秒）
}

// StartGamePayload 开始游戏请求，0 表示使用默认张数
type StartGamePayload struct {
	CardsPerPlayer int `json:"cards_per_player,omitempty"`
}

// PlayCardPayload 出牌请求。万能牌需要 chosen_color
type PlayCardPayload struct {
	RoomCardID  string `json:"room_card_id"`
	ChosenColor string `json:"chosen_color,omitempty"`
}

// GetLeaderboardPayload 获取排行榜请求
type GetLeaderboardPayload struct {
	Limit int `json:"limit"`
}

// --- 服务端响应 Payloads ---

// ConnectedPayload 连接成功响应
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
	PlayerID     string `json:"player_id"`
	RoomID       string `json:"room_id"`
}

// PongPayload 心跳响应
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"` // 客户端发送的时间戳
	ServerTimestamp int64 `json:"server_timestamp"` // 服务器时间戳（毫秒）
}

// RoomClosedPayload 房间关闭通知
type RoomClosedPayload struct {
	RoomID string `json:"room_id"`
}

// ErrorPayload 错误响应
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
