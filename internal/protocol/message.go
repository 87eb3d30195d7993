package protocol

import "encoding/json"

// Message 基础消息结构
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 服务端 消息类型
const (
	MsgPing MessageType = "ping" // 心跳 ping

	// 房间操作
	MsgJoin  MessageType = "join"  // 加入房间
	MsgLeave MessageType = "leave" // 离开房间

	// 游戏操作
	MsgStartGame   MessageType = "start_game"   // 开始游戏
	MsgPlayCard    MessageType = "play_card"    // 出牌
	MsgDrawCard    MessageType = "draw_card"    // 摸牌
	MsgPreviewDraw MessageType = "preview_draw" // 查看牌堆顶背面
	MsgGetState    MessageType = "get_state"    // 拉取当前视图

	// 排行榜
	MsgGetLeaderboard MessageType = "get_leaderboard"
)

// 服务端 → 客户端 消息类型
const (
	MsgConnected MessageType = "connected" // 连接成功
	MsgPong      MessageType = "pong"      // 心跳 pong

	MsgState      MessageType = "state"       // 房间视图，每条成功命令后推送
	MsgRoomClosed MessageType = "room_closed" // 房间已关闭
	MsgPreview    MessageType = "preview"     // 牌堆顶背面

	MsgLeaderboardResult MessageType = "leaderboard_result"

	// 错误
	MsgError MessageType = "error"
)
