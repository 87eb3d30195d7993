package protocol

// 错误码
const (
	ErrCodeUnknown     = 1000
	ErrCodeInvalidMsg  = 1001
	ErrCodeRateLimit   = 1002 // 速率限制
	ErrCodeUnauthorize = 1003 // 身份校验失败
	ErrCodeMaintenance = 1004 // 维护中，不再创建房间

	// 校验错误：状态不变，仅通知操作者
	ErrCodeNotYourTurn        = 2001
	ErrCodeCardNotInHand      = 2002
	ErrCodeColorValueMismatch = 2003
	ErrCodeMissingChosenColor = 2004
	ErrCodeStackingNotAllowed = 2005
	ErrCodeInvalidChosenColor = 2006

	// 前置条件错误
	ErrCodeRoomNotFound       = 3001
	ErrCodeNotEnoughPlayers   = 3002
	ErrCodeRoomAlreadyStarted = 3003
	ErrCodeRoomFinished       = 3004
	ErrCodeGameNotStart       = 3005
	ErrCodeNotHost            = 3006
	ErrCodeRoomFull           = 3007
	ErrCodeNotInRoom          = 3008
	ErrCodeTurnNotExpired     = 3009
	ErrCodeInsufficientCards  = 3010
	ErrCodeRoomClosed         = 3011

	// 资源错误：可重试
	ErrCodeDeckExhausted = 4001
	ErrCodeRoomBusy      = 4002

	// 过期的超时推进，静默忽略
	ErrCodeStaleTimeout = 5001
)

// ErrorMessages 错误码对应的消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:            "未知错误",
	ErrCodeInvalidMsg:         "无效的消息格式",
	ErrCodeRateLimit:          "请求过于频繁",
	ErrCodeUnauthorize:        "身份校验失败",
	ErrCodeMaintenance:        "服务器维护中，暂停创建房间",
	ErrCodeNotYourTurn:        "还没轮到您",
	ErrCodeCardNotInHand:      "这张牌不在您手中",
	ErrCodeColorValueMismatch: "颜色和点数都不匹配",
	ErrCodeMissingChosenColor: "万能牌需要选择颜色",
	ErrCodeStackingNotAllowed: "当前不能叠加，只能摸牌",
	ErrCodeInvalidChosenColor: "所选颜色不属于当前面",
	ErrCodeRoomNotFound:       "房间不存在",
	ErrCodeNotEnoughPlayers:   "玩家人数不足",
	ErrCodeRoomAlreadyStarted: "游戏已开始",
	ErrCodeRoomFinished:       "游戏已结束",
	ErrCodeGameNotStart:       "游戏尚未开始",
	ErrCodeNotHost:            "只有房主可以开始游戏",
	ErrCodeRoomFull:           "房间已满",
	ErrCodeNotInRoom:          "您不在房间中",
	ErrCodeTurnNotExpired:     "当前回合尚未超时",
	ErrCodeInsufficientCards:  "牌不够发",
	ErrCodeRoomClosed:         "房间已关闭",
	ErrCodeDeckExhausted:      "牌堆已空",
	ErrCodeRoomBusy:           "房间繁忙，请稍后重试",
	ErrCodeStaleTimeout:       "超时推进已过期",
}
