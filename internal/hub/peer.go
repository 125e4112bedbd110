package hub

import (
	"go.uber.org/atomic"

	"github.com/lk2023060901/switchboard-go/internal/network/session"
)

// connState 为单条连接上的协议状态。
//
// listen 是两段式调用：先写回 ack，之后该连接上的下一行是被投递的消息。
// 状态只在 hub 侧记录，用于日志与排查，不影响路由。
type connState int32

const (
	// stateIdle 表示连接上没有未完成的 listen。
	stateIdle connState = iota
	// stateAwaitingDelivery 表示 ack 已入队，正在等待第一条投递。
	stateAwaitingDelivery
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingDelivery:
		return "awaiting_delivery"
	default:
		return "unknown"
	}
}

// peer 包装 session.Session，在入队时顺带推进 connState。
type peer struct {
	session.Session
	state atomic.Int32
}

var _ Conn = (*peer)(nil)

func newPeer(sess session.Session) *peer {
	return &peer{Session: sess}
}

// Send 实现 Conn.Send。
//
// 状态先于入队推进，对端读到该行时状态已经生效；入队失败时回退。
// Registry 持锁调用，因此状态顺序与写出顺序一致。
func (p *peer) Send(msg any) error {
	prev := p.state.Load()
	switch msg.(type) {
	case *ListenResult:
		p.state.Store(int32(stateAwaitingDelivery))
	case *MessagePush, *TimeoutPush:
		p.state.CompareAndSwap(int32(stateAwaitingDelivery), int32(stateIdle))
	}
	if err := p.Session.Send(msg); err != nil {
		p.state.Store(prev)
		return err
	}
	return nil
}

func (p *peer) State() connState {
	return connState(p.state.Load())
}
