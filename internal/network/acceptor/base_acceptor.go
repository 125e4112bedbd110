package acceptor

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	network "github.com/lk2023060901/switchboard-go/internal/network"
	"github.com/lk2023060901/switchboard-go/internal/network/codec"
	"github.com/lk2023060901/switchboard-go/internal/network/session"
	"github.com/lk2023060901/switchboard-go/pkg/log"
	"github.com/lk2023060901/switchboard-go/pkg/metrics"
	"github.com/lk2023060901/switchboard-go/pkg/util/conc"
)

const (
	defaultInboundQueueSize = 64
	defaultMaxConnections   = 1024
)

// Config 描述接入器及其创建的会话的运行参数，零值字段使用默认值。
type Config struct {
	// SendQueueSize 为每个会话发送队列的容量。
	SendQueueSize int
	// WriteTimeout 为单行写出的超时时间，0 表示不设置。
	WriteTimeout time.Duration
	// MaxFrameSize 为单行请求的最大字节数。
	MaxFrameSize int
	// MaxConnections 为同时处理的连接数上限，超出时新连接被直接关闭。
	MaxConnections int
}

// BaseAcceptor 是 Acceptor 接口的基础 TCP 实现。
//
// 设计目标：
//   - 对外只暴露 Acceptor 接口和 Handler 回调，不绑定具体业务逻辑；
//   - 内部负责：监听端口、接受连接、创建 Session、驱动按行读取并回调 Handler；
//   - 每个连接使用独立的 goroutine 串行处理消息，保证同一 Session 上 Handler 串行执行。
type BaseAcceptor struct {
	ln       net.Listener
	codec    codec.Codec
	cfg      Config
	sessions *session.BaseSessionManager
	pool     *conc.Pool[struct{}]

	closeOnce sync.Once
}

// 确保 BaseAcceptor 实现了 Acceptor 接口。
var _ Acceptor = (*BaseAcceptor)(nil)

// NewBaseAcceptor 使用已有的 Listener 创建一个基础接入器。
//
// 参数：
//   - ln ：已创建好的 net.Listener（例如 TCP 监听器）；
//   - cfg：接入参数，零值字段使用默认值。
func NewBaseAcceptor(ln net.Listener, cfg Config) (*BaseAcceptor, error) {
	if ln == nil {
		return nil, errors.New("acceptor: listener is nil")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	return &BaseAcceptor{
		ln:       ln,
		codec:    codec.NewJSONLine(cfg.MaxFrameSize),
		cfg:      cfg,
		sessions: session.NewBaseSessionManager(),
		pool: conc.NewPool[struct{}](cfg.MaxConnections,
			conc.WithNonBlocking(true),
			conc.WithConcealPanic(true),
		),
	}, nil
}

// NewTCPAcceptor 在给定地址上监听 TCP，并创建一个基础接入器。
//
// 参数：
//   - addr：监听地址，例如 "127.0.0.1:7777"；
//   - cfg ：接入参数。
func NewTCPAcceptor(addr string, cfg Config) (*BaseAcceptor, error) {
	if addr == "" {
		return nil, errors.New("acceptor: addr is empty")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "acceptor: listen on %s", addr)
	}
	return NewBaseAcceptor(ln, cfg)
}

// Addr 实现 Acceptor.Addr。
func (a *BaseAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Sessions 返回当前在线会话的索引。
func (a *BaseAcceptor) Sessions() session.Manager {
	return a.sessions
}

// Serve 实现 Acceptor.Serve。
//
// 接受连接时的临时错误按指数退避重试；ctx 取消或监听器被关闭时，
// 关闭所有在线会话并等待各连接协程退出后返回 nil。
func (a *BaseAcceptor) Serve(ctx context.Context, h Handler) error {
	if h == nil {
		return errors.New("acceptor: handler is nil")
	}

	// ctx 取消时关闭监听器，使阻塞中的 Accept 返回。
	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer func() {
		a.sessions.CloseAll()
		wg.Wait()
		a.pool.Release()
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 0

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			wait := bo.NextBackOff()
			h.OnError(nil, network.StageAccept, errors.Wrap(network.ErrAcceptFailed, err.Error()))
			log.RatedWarn(1, "acceptor: accept failed, retrying", zap.Duration("backoff", wait), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		wg.Add(1)
		future := a.pool.Submit(func() (struct{}, error) {
			defer wg.Done()
			a.handleConnection(ctx, conn, h)
			return struct{}{}, nil
		})
		// 非阻塞池已满时 Future 立即带错误结束，任务不会执行。
		if future.Done() {
			if err := future.Err(); err != nil {
				wg.Done()
				_ = conn.Close()
				h.OnError(nil, network.StageAccept, errors.Wrap(network.ErrTooManySessions, err.Error()))
			}
		}
	}
}

// Close 实现 Acceptor.Close。
func (a *BaseAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.ln.Close()
	})
	return err
}

func (a *BaseAcceptor) sessionOptions() []session.Option {
	return []session.Option{
		session.WithSendQueueSize(a.cfg.SendQueueSize),
		session.WithWriteTimeout(a.cfg.WriteTimeout),
	}
}

// handleConnection 处理单个连接的生命周期。
//
// 流程：
//  1. 创建 BaseSession 并注册到会话索引；
//  2. 调用 sess.OnConnected() 与 Handler.OnConnected；
//  3. 读协程按行读取原始帧，投递到 per-session 队列；
//  4. 在当前协程中按顺序消费帧，并回调 Handler.OnMessage；
//  5. 读失败或对端关闭后，调用 sess.OnDisconnected(err) 与 Handler.OnSessionClosed，并关闭会话。
func (a *BaseAcceptor) handleConnection(ctx context.Context, conn net.Conn, h Handler) {
	sess := session.NewBaseSession(ctx, session.NextID(), conn, a.codec, a.sessionOptions()...)
	if err := a.sessions.Register(sess); err != nil {
		h.OnError(sess, network.StageAccept, err)
		_ = sess.Close()
		return
	}
	metrics.HubConnections.Inc()

	sess.OnConnected()
	h.OnConnected(sess)

	var cause error
	defer func() {
		sess.OnDisconnected(cause)
		h.OnSessionClosed(sess, cause)
		_ = sess.Close()
		_ = a.sessions.Unregister(sess.ID())
		metrics.HubConnections.Dec()
	}()

	frames := make(chan []byte, defaultInboundQueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(frames)
		cause = a.readLoop(sess, conn, h, frames)
	}()

	// 顺序消费消息帧，确保同一 Session 上的业务 Handler 串行执行。
	for frame := range frames {
		h.OnMessage(sess, frame)
	}
	<-done
}

// readLoop 持续从连接中按行读取原始帧，将结果写入 frames 通道。
//
// 返回值：
//   - nil 表示正常结束（对端关闭连接或会话被关闭）；
//   - 非 nil error 表示读取过程中发生的错误。
func (a *BaseAcceptor) readLoop(sess *session.BaseSession, conn net.Conn, h Handler, frames chan<- []byte) error {
	reader := bufio.NewReader(conn)
	for {
		frame, err := a.codec.DecodeRaw(reader)
		if err != nil {
			switch {
			case errors.Is(err, network.ErrFrameTooLarge):
				// 超长的行已被整体丢弃，连接继续可用。
				h.OnError(sess, network.StageDecode, err)
				continue
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), sess.Closed():
				return nil
			default:
				return errors.Wrap(network.ErrRecvFailed, err.Error())
			}
		}

		// frame 指向 reader 内部缓冲区之外的新切片，可以安全地跨协程传递。
		select {
		case frames <- frame:
		case <-sess.Context().Done():
			return nil
		}
	}
}
