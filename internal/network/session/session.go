package session

import (
	"context"
	"net"
)

// Session 抽象了一条网络会话/连接。
//
// 约定：
//   - 每个 Session 对应一条底层 TCP 连接；
//   - Session ID 使用 64 位无符号整型，在进程内全局唯一；
//   - 框架层只关心连接本身，不关心 hub 中的 session 名称等业务概念。
type Session interface {
	// ID 返回该会话在进程内的唯一标识，由 NextID 分配。
	ID() uint64

	// Context 返回与该会话关联的上下文，会话关闭时 Context.Done() 被触发。
	Context() context.Context

	// RemoteAddr 返回远端地址（客户端地址）。
	RemoteAddr() net.Addr

	// LocalAddr 返回本端地址（服务器监听地址）。
	LocalAddr() net.Addr

	// Send 将一条消息投递到该会话的发送队列，由会话自己的发送协程编码并写出。
	//
	// 行为：
	//   - 不阻塞：队列已满时返回 network.ErrSendQueueFull；
	//   - 会话已关闭时返回 network.ErrSessionClosed；
	//   - 返回 nil 仅表示已入队，不代表对端已收到。
	Send(msg any) error

	// Close 主动关闭该会话，关闭底层连接并取消 Context。多次调用是幂等的。
	Close() error

	// Closed 判断会话是否已关闭。
	Closed() bool

	// OnConnected 在会话建立成功后由接入层调用一次。
	OnConnected()

	// OnDisconnected 在读循环结束时由接入层调用，err 为断开原因，正常关闭时为 nil。
	OnDisconnected(err error)
}

// Manager 维护当前所有在线会话的索引。
//
// 职责说明：
//   - 只负责会话的注册、查询和移除，不直接创建或关闭底层连接；
//   - Session 的具体生命周期由 acceptor 决定。
type Manager interface {
	// Register 将一个已创建好的 Session 注册到管理器中，ID 重复时返回错误。
	Register(sess Session) error

	// Get 根据 session id 查找会话。
	Get(id uint64) (sess Session, ok bool)

	// Unregister 从管理器中移除指定 id 的会话，仅删除索引，不负责关闭。
	Unregister(id uint64) error

	// Range 遍历当前所有在线会话，fn 返回 false 时中断遍历。
	Range(fn func(sess Session) bool)

	// Count 返回当前已注册的会话数量。
	Count() int
}
