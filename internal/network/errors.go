package network

import "github.com/cockroachdb/errors"

// Stage 表示网络收发链路中的处理阶段。
//
// 主要用于在回调中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageAccept   Stage = "accept"   // 接受新连接
	StageRecv     Stage = "recv"     // 从连接读取一行原始字节
	StageDecode   Stage = "decode"   // 原始字节 -> 请求对象
	StageDispatch Stage = "dispatch" // 请求对象 -> 业务处理
	StageEncode   Stage = "encode"   // 业务对象 -> JSON 行
	StageSend     Stage = "send"     // 写入对端连接
)

// 统一的错误码常量。
//
// 注意：这些是用于日志/监控的稳定字符串，真正的 error 对象在下面构造。
const (
	ErrCodeAcceptFailed    = "network:accept_failed"
	ErrCodeRecvFailed      = "network:recv_failed"
	ErrCodeDecodeFailed    = "network:decode_failed"
	ErrCodeDispatchFailed  = "network:dispatch_failed"
	ErrCodeEncodeFailed    = "network:encode_failed"
	ErrCodeSendFailed      = "network:send_failed"
	ErrCodeFrameTooLarge   = "network:frame_too_large"
	ErrCodeSendQueueFull   = "network:send_queue_full"
	ErrCodeSessionClosed   = "network:session_closed"
	ErrCodeTooManySessions = "network:too_many_sessions"
)

var (
	// ErrAcceptFailed 表示监听器接受连接失败且不可重试。
	ErrAcceptFailed = errors.New(ErrCodeAcceptFailed)

	// ErrRecvFailed 表示在读取底层连接数据时发生错误。
	ErrRecvFailed = errors.New(ErrCodeRecvFailed)

	// ErrDecodeFailed 表示一行数据无法解码为目标对象。
	ErrDecodeFailed = errors.New(ErrCodeDecodeFailed)

	// ErrDispatchFailed 表示在将请求分发给业务处理时发生错误。
	ErrDispatchFailed = errors.New(ErrCodeDispatchFailed)

	// ErrEncodeFailed 表示在将业务对象编码为 JSON 行时发生错误。
	ErrEncodeFailed = errors.New(ErrCodeEncodeFailed)

	// ErrSendFailed 表示在发送数据到对端时发生错误。
	ErrSendFailed = errors.New(ErrCodeSendFailed)

	// ErrFrameTooLarge 表示单行数据超过了允许的最大长度，该行被整体丢弃，连接保持可用。
	ErrFrameTooLarge = errors.New(ErrCodeFrameTooLarge)

	// ErrSendQueueFull 表示会话发送队列已满，消息未被投递。
	ErrSendQueueFull = errors.New(ErrCodeSendQueueFull)

	// ErrSessionClosed 表示会话已关闭，无法继续发送。
	ErrSessionClosed = errors.New(ErrCodeSessionClosed)

	// ErrTooManySessions 表示同时在线的连接数已达上限。
	ErrTooManySessions = errors.New(ErrCodeTooManySessions)
)
