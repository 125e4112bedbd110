package session

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/switchboard-go/internal/network"
	"github.com/lk2023060901/switchboard-go/internal/network/codec"
	"github.com/lk2023060901/switchboard-go/pkg/log"
)

// defaultSendQueueSize 为每个会话的发送队列容量。
const defaultSendQueueSize = 256

var idGenerator atomic.Uint64

// NextID 返回一个进程内唯一的会话 ID，从 1 开始递增。
func NextID() uint64 {
	return idGenerator.Inc()
}

// Option 用于配置 BaseSession。
type Option func(*BaseSession)

// WithSendQueueSize 设置发送队列容量，<= 0 时使用默认值。
func WithSendQueueSize(size int) Option {
	return func(s *BaseSession) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWriteTimeout 设置单次写出的超时时间，为 0 表示不设置 deadline。
func WithWriteTimeout(d time.Duration) Option {
	return func(s *BaseSession) {
		s.writeTimeout = d
	}
}

// BaseSession 提供了 Session 接口的基础实现。
//
// 所有写出都经由 sendQueue 交给唯一的 sendLoop 协程完成，
// 因此同一连接上的响应与推送不会在行内交叉。
type BaseSession struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn  net.Conn
	codec codec.Codec

	remoteAddr net.Addr
	localAddr  net.Addr

	// sendQueue 为已序列化的待发送行。
	//   - Send 在调用方协程内完成序列化，再非阻塞地投递到该队列；
	//   - sendLoop 从队列中取出行，写入 writer 并刷到底层连接。
	sendQueue    chan []byte
	queueSize    int
	writeTimeout time.Duration
	writer       *bufio.Writer

	closed    atomic.Bool
	closeOnce sync.Once
	loopDone  chan struct{}
}

var _ Session = (*BaseSession)(nil)

// NewBaseSession 创建一个基于 net.Conn 的基础 Session 实例，并启动发送协程。
//
// 参数：
//   - parent：会话所属的上层上下文；若为 nil，则使用 context.Background()；
//   - id    ：会话 ID，通常由 NextID 分配；
//   - conn  ：底层网络连接；
//   - c     ：用于该连接的 Codec。
func NewBaseSession(parent context.Context, id uint64, conn net.Conn, c codec.Codec, opts ...Option) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &BaseSession{
		id:         id,
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		codec:      c,
		remoteAddr: conn.RemoteAddr(),
		localAddr:  conn.LocalAddr(),
		queueSize:  defaultSendQueueSize,
		writer:     bufio.NewWriter(conn),
		loopDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sendQueue = make(chan []byte, s.queueSize)
	go s.sendLoop()

	return s
}

// ID 实现 Session.ID。
func (s *BaseSession) ID() uint64 {
	return s.id
}

// Context 实现 Session.Context。
func (s *BaseSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *BaseSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// LocalAddr 实现 Session.LocalAddr。
func (s *BaseSession) LocalAddr() net.Addr {
	return s.localAddr
}

// Conn 返回底层连接，仅供接入层读取使用。
func (s *BaseSession) Conn() net.Conn {
	return s.conn
}

// Send 实现 Session.Send。
//
// 序列化失败、会话已关闭或队列已满时返回错误，消息不会入队；
// 返回 nil 表示该行已排在此前所有消息之后等待写出。
func (s *BaseSession) Send(msg any) error {
	if s.closed.Load() || s.ctx.Err() != nil {
		return network.ErrSessionClosed
	}
	frame, err := s.codec.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case s.sendQueue <- frame:
		return nil
	default:
		return errors.Wrapf(network.ErrSendQueueFull, "session %d queue capacity %d", s.id, cap(s.sendQueue))
	}
}

// Closed 实现 Session.Closed。
func (s *BaseSession) Closed() bool {
	return s.closed.Load() || s.ctx.Err() != nil
}

// Close 实现 Session.Close。
//
// 关闭前会给发送协程一个短暂的机会把已入队的消息写完。
func (s *BaseSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		// 先取消上下文，通知 sendLoop 退出，再关闭连接。
		s.cancel()
		select {
		case <-s.loopDone:
		case <-time.After(100 * time.Millisecond):
		}
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

// OnConnected 默认只记录日志，方便在自定义 Session 中覆写。
func (s *BaseSession) OnConnected() {
	log.Debug("session connected", log.FieldConnID(s.id), zap.Stringer("remote", s.remoteAddr))
}

// OnDisconnected 默认只记录日志，方便在自定义 Session 中覆写。
func (s *BaseSession) OnDisconnected(err error) {
	log.Debug("session disconnected", log.FieldConnID(s.id), zap.Stringer("remote", s.remoteAddr), zap.Error(err))
}

// sendLoop 为每个会话启动的专职发送协程。
//
// 行为：
//   - 从 sendQueue 中按顺序取出已序列化的行写入 writer；
//   - 队列暂时为空时 Flush，合并连续推送的系统调用；
//   - 写出失败视为连接异常：取消上下文并关闭连接，读循环随之退出。
//   - 上下文取消后，把已入队的消息尽量写完再退出。
func (s *BaseSession) sendLoop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			s.drain()
			return
		case frame := <-s.sendQueue:
			if err := s.write(frame); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

func (s *BaseSession) write(frame []byte) error {
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.codec.WriteFrame(s.writer, frame); err != nil {
		return errors.Wrap(network.ErrSendFailed, err.Error())
	}
	if len(s.sendQueue) == 0 {
		if err := s.writer.Flush(); err != nil {
			return errors.Wrap(network.ErrSendFailed, err.Error())
		}
	}
	return nil
}

func (s *BaseSession) drain() {
	for {
		select {
		case frame := <-s.sendQueue:
			if err := s.write(frame); err != nil {
				return
			}
		default:
			_ = s.writer.Flush()
			return
		}
	}
}

func (s *BaseSession) fail(err error) {
	log.Debug("session send loop failed", log.FieldConnID(s.id), zap.Error(err))
	s.closed.Store(true)
	s.cancel()
	_ = s.conn.Close()
}
