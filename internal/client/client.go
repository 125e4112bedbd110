package client

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/switchboard-go/internal/json"
	network "github.com/lk2023060901/switchboard-go/internal/network"
	"github.com/lk2023060901/switchboard-go/internal/network/codec"
	"github.com/lk2023060901/switchboard-go/internal/network/framer"
	"github.com/lk2023060901/switchboard-go/pkg/log"
	"github.com/lk2023060901/switchboard-go/pkg/util/merr"
	"github.com/lk2023060901/switchboard-go/pkg/util/retry"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	// DialTimeout 为单次拨号的超时时间。
	DialTimeout time.Duration
	// DialAttempts 为拨号的最大尝试次数。
	DialAttempts uint
	// DialBackoff 为拨号重试的初始间隔，之后按倍数增长。
	DialBackoff time.Duration
	// MaxFrameSize 为单行响应的最大字节数。
	// hub 只限制入站行，转义后的推送可能是原始请求的数倍，默认值因此放宽。
	MaxFrameSize int
}

func defaultConfig() Config {
	return Config{
		DialTimeout:  3 * time.Second,
		DialAttempts: 3,
		DialBackoff:  50 * time.Millisecond,
		MaxFrameSize: 8 * framer.DefaultMaxFrameSize,
	}
}

// Option 用于修改 Config。
type Option func(*Config)

func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

func WithDialAttempts(n uint) Option {
	return func(c *Config) { c.DialAttempts = n }
}

func WithDialBackoff(d time.Duration) Option {
	return func(c *Config) { c.DialBackoff = d }
}

func WithMaxFrameSize(n int) Option {
	return func(c *Config) { c.MaxFrameSize = n }
}

// Client 是 hub 协议的客户端。
//
// 约定：
//   - 一次请求写一行、读一行，调用之间由互斥锁串行化；
//   - 等待响应期间收到的推送（带 type 字段的行）会被暂存，由 Next 按顺序取出；
//   - 传输失败时丢弃当前连接，下一次调用自动重新拨号。
type Client struct {
	addr  string
	cfg   Config
	codec codec.Codec

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	pending []Reply
}

// Dial 连接到 addr 上的 hub，拨号失败时按配置重试。
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	// retry 中 0 表示无限重试。
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = 1
	}
	c := &Client{
		addr:  addr,
		cfg:   cfg,
		codec: codec.NewJSONLine(cfg.MaxFrameSize),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr 返回 hub 地址。
func (c *Client) Addr() string {
	return c.addr
}

// Do 发送一条请求并返回对应的响应行。
//
// 返回的 error 只表示传输失败；hub 返回的 {"error": ...} 体现在 Reply.Err 中。
func (c *Client) Do(ctx context.Context, action string, params any) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeRequestLocked(ctx, action, params); err != nil {
		return Reply{}, err
	}
	return c.readResponseLocked(ctx)
}

// Next 返回下一条推送；没有暂存的推送时阻塞读取连接上的下一行。
func (c *Client) Next(ctx context.Context) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nextPushLocked(ctx)
}

// Pending 返回当前暂存的推送数量。
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close 关闭当前连接。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) ensureConnectedLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	var conn net.Conn
	err := retry.Do(ctx, func() error {
		var derr error
		conn, derr = dialer.DialContext(ctx, "tcp", c.addr)
		return derr
	}, retry.Attempts(c.cfg.DialAttempts), retry.Sleep(c.cfg.DialBackoff))
	if err != nil {
		return errors.Wrapf(err, "cannot connect to hub at %s", c.addr)
	}

	log.Ctx(ctx).Debug("connected to hub", zap.String("addr", c.addr), zap.Stringer("local", conn.LocalAddr()))
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.pending = nil
	return nil
}

func (c *Client) writeRequestLocked(ctx context.Context, action string, params any) error {
	if err := c.ensureConnectedLocked(ctx); err != nil {
		return err
	}
	if params == nil {
		params = struct{}{}
	}

	req := struct {
		Action string `json:"action"`
		Params any    `json:"params"`
	}{Action: action, Params: params}

	stop := c.bindDeadline(ctx)
	defer stop()
	if err := c.codec.Encode(c.conn, req); err != nil {
		_ = c.dropLocked()
		return c.transportErr(ctx, "write request", err)
	}
	return nil
}

// readResponseLocked 读到第一条非推送行为止，途中的推送被暂存。
func (c *Client) readResponseLocked(ctx context.Context) (Reply, error) {
	for {
		reply, err := c.readLineLocked(ctx)
		if err != nil {
			return Reply{}, err
		}
		if !reply.IsPush() {
			return reply, nil
		}
		c.pending = append(c.pending, reply)
	}
}

func (c *Client) nextPushLocked(ctx context.Context) (Reply, error) {
	if len(c.pending) > 0 {
		reply := c.pending[0]
		c.pending = c.pending[1:]
		return reply, nil
	}
	if err := c.ensureConnectedLocked(ctx); err != nil {
		return Reply{}, err
	}
	return c.readLineLocked(ctx)
}

func (c *Client) readLineLocked(ctx context.Context) (Reply, error) {
	if c.conn == nil {
		return Reply{}, merr.WrapErrIoFailed(c.addr, network.ErrSessionClosed)
	}

	stop := c.bindDeadline(ctx)
	defer stop()

	frame, err := c.codec.DecodeRaw(c.reader)
	if err != nil {
		_ = c.dropLocked()
		if errors.Is(err, io.EOF) {
			return Reply{}, merr.WrapErrIoUnexpectEOF(c.addr, errors.New("Hub connection closed"))
		}
		return Reply{}, c.transportErr(ctx, "read response", err)
	}
	return parseReply(frame)
}

// bindDeadline 把 ctx 的截止时间与取消映射到连接的读写 deadline 上。
func (c *Client) bindDeadline(ctx context.Context) (stop func()) {
	conn := c.conn
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Time{})
	}
	cancelStop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	return func() { cancelStop() }
}

func (c *Client) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrapf(ctxErr, "hub %s interrupted", op)
	}
	return merr.WrapErrIoFailed(c.addr, errors.Wrapf(err, "hub %s", op))
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Reply 为从 hub 读到的一行。
type Reply struct {
	// Raw 为整行的原始 JSON。
	Raw json.RawMessage
	// Type 为推送类型，普通响应为空。
	Type string
	// Error 为 hub 返回的错误文本，成功时为空。
	Error string
}

// IsPush 判断该行是否为推送。
func (r Reply) IsPush() bool {
	return r.Type != ""
}

// Err 在 hub 返回错误时返回 *HubError。
func (r Reply) Err() error {
	if r.Error == "" {
		return nil
	}
	return &HubError{Message: r.Error}
}

// Decode 将整行解码到 v。
func (r Reply) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// HubError 为 hub 返回的 {"error": ...}。
type HubError struct {
	Message string
}

func (e *HubError) Error() string {
	return e.Message
}

func parseReply(frame []byte) (Reply, error) {
	var head struct {
		Type  *string `json:"type"`
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return Reply{}, errors.Wrapf(network.ErrDecodeFailed, "malformed line from hub: %v", err)
	}
	reply := Reply{Raw: append(json.RawMessage(nil), frame...)}
	if head.Type != nil {
		reply.Type = *head.Type
	}
	if head.Error != nil {
		reply.Error = *head.Error
	}
	return reply, nil
}
