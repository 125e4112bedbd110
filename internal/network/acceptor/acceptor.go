package acceptor

import (
	"context"
	"net"

	network "github.com/lk2023060901/switchboard-go/internal/network"
	"github.com/lk2023060901/switchboard-go/internal/network/session"
)

// Acceptor 抽象了“监听端口并接受新连接”的能力。
//
// 约定：
//   - Serve 阻塞运行，直到 ctx 被取消或 Close 被调用；
//   - 每条连接对应一个 session.Session，由 Acceptor 负责创建、注册与关闭；
//   - 同一 Session 上的 Handler.OnMessage 串行执行。
type Acceptor interface {
	// Serve 启动接入循环。ctx 取消或监听器关闭视为正常退出，返回 nil。
	Serve(ctx context.Context, h Handler) error

	// Close 关闭监听器，已建立的连接会在 Serve 返回前被关闭。多次调用是幂等的。
	Close() error

	// Addr 返回实际监听的地址，便于使用 ":0" 端口时获取真实端口。
	Addr() net.Addr
}

// Handler 为业务层暴露的连接事件回调。
//
// 所有回调都不应长时间阻塞：OnMessage 阻塞会推迟同一连接上后续请求的处理。
type Handler interface {
	// OnConnected 在会话建立并完成注册后调用。
	OnConnected(sess session.Session)

	// OnMessage 在读到一帧完整数据后调用，frame 为去掉行尾的原始字节。
	OnMessage(sess session.Session, frame []byte)

	// OnSessionClosed 在连接结束时调用一次，err 为断开原因，正常关闭时为 nil。
	OnSessionClosed(sess session.Session, err error)

	// OnError 报告链路中非致命的错误，stage 标记出错阶段。
	// StageAccept 阶段的错误发生在会话建立之前，此时 sess 为 nil。
	OnError(sess session.Session, stage network.Stage, err error)
}
