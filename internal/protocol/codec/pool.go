package codec

import (
	"bytes"
	"sync"

	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
)

// 消息和编码缓冲区对象池，Decode/Encode 使用
var (
	messagePool = sync.Pool{New: func() any { return new(protocol.Message) }}
	bufferPool  = sync.Pool{New: func() any { return new(bytes.Buffer) }}
)

// GetMessage 从池中取一条空消息
func GetMessage() *protocol.Message {
	return messagePool.Get().(*protocol.Message)
}

// PutMessage 归还 Decode 得到的消息。
// Payload 置空而不是截断：RawMessage 解码时会复用底层数组，
// 调用方可能仍持有旧的 Payload
func PutMessage(msg *protocol.Message) {
	if msg == nil {
		return
	}
	*msg = protocol.Message{}
	messagePool.Put(msg)
}

// GetBuffer 取一个空缓冲区
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer 清空后归还，保留容量
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}
