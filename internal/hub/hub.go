package hub

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	network "github.com/lk2023060901/switchboard-go/internal/network"
	"github.com/lk2023060901/switchboard-go/internal/network/acceptor"
	"github.com/lk2023060901/switchboard-go/internal/network/router"
	"github.com/lk2023060901/switchboard-go/internal/network/serializer"
	"github.com/lk2023060901/switchboard-go/internal/network/session"
	"github.com/lk2023060901/switchboard-go/pkg/log"
	"github.com/lk2023060901/switchboard-go/pkg/metrics"
	"github.com/lk2023060901/switchboard-go/pkg/util/merr"
	"github.com/lk2023060901/switchboard-go/pkg/util/typeutil"
)

const (
	tracerName = "switchboard/hub"

	// 未注册或无法解析的 action 在指标中统一归类，避免标签基数失控。
	actionUnknown = "unknown"
	actionInvalid = "invalid"
)

// Config 为 hub 的运行参数。
type Config struct {
	// IdleTimeout 为 session 空闲回收阈值。
	IdleTimeout time.Duration
	// SweepInterval 为空闲扫描周期。
	SweepInterval time.Duration
	// MaxFrameSize 为单行请求上限，仅用于错误描述。
	MaxFrameSize int
}

// DefaultConfig 返回默认参数：空闲 60 分钟，每 60 秒扫描一次。
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   60 * time.Minute,
		SweepInterval: 60 * time.Second,
	}
}

// Hub 把连接事件翻译成对 Registry 的调用，实现 acceptor.Handler。
type Hub struct {
	cfg      Config
	registry *Registry
	router   router.Router
	actions  typeutil.Set[string]

	peersMu sync.RWMutex
	peers   map[uint64]*peer

	logger *log.MLogger
}

var _ acceptor.Handler = (*Hub)(nil)

// New 创建 hub 并注册全部 action。
func New(cfg Config, opts ...RegistryOption) (*Hub, error) {
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	h := &Hub{
		cfg:      cfg,
		registry: NewRegistry(cfg.IdleTimeout, opts...),
		router:   router.New(serializer.JSONSerializer{}),
		peers:    make(map[uint64]*peer),
		logger:   log.With(log.FieldModule("hub")).WithRateGroup("hub.protocol", 1, 60),
	}
	if err := h.registerRoutes(); err != nil {
		return nil, err
	}
	h.actions = typeutil.NewSet(h.router.Actions()...)
	return h, nil
}

// Registry 返回 hub 使用的 Registry。
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Config 返回生效的参数。
func (h *Hub) Config() Config {
	return h.cfg
}

// NewReaper 返回绑定到当前 Registry 的空闲回收器。
func (h *Hub) NewReaper() *Reaper {
	return NewReaper(h.registry, h.cfg.SweepInterval)
}

// OnConnected 实现 acceptor.Handler。
func (h *Hub) OnConnected(sess session.Session) {
	h.peersMu.Lock()
	h.peers[sess.ID()] = newPeer(sess)
	h.peersMu.Unlock()

	h.logger.Info("client connected", log.FieldConnID(sess.ID()), zap.Stringer("remote", sess.RemoteAddr()))
}

// OnMessage 实现 acceptor.Handler。
//
// 每行请求对应一个 span；失败时写回 {"error": ...}，连接保持打开。
func (h *Hub) OnMessage(sess session.Session, frame []byte) {
	start := time.Now()

	req, err := h.router.Decode(frame)
	action := h.actionLabel(req, err)

	ctx, span := log.NewIntentContext(sess.Context(), tracerName, action)
	defer span.End()
	ctx = log.WithFields(ctx, log.FieldConnID(sess.ID()), log.FieldAction(action))

	var resp any
	if err == nil {
		resp, err = h.router.Handle(ctx, sess, req)
	}

	status := metrics.StatusOK
	if err != nil {
		status = merr.GetErrorType(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, merr.Message(err))
		h.logRequestError(ctx, err)
		resp = &ErrorResponse{Error: merr.Message(err)}
	}

	// listen 的 ack 已由 Registry 入队，此时 resp 为 nil。
	if resp != nil {
		h.reply(ctx, sess, resp)
	}

	metrics.HubRequestsTotal.WithLabelValues(action, status).Inc()
	metrics.HubRequestLatency.WithLabelValues(action).Observe(float64(time.Since(start).Microseconds()) / 1000)
}

// OnSessionClosed 实现 acceptor.Handler，清理该连接拥有的全部 session。
func (h *Hub) OnSessionClosed(sess session.Session, err error) {
	p := h.peerOf(sess)
	removed := h.registry.RemoveOwnedBy(p)
	for _, name := range removed {
		h.logger.Info("session cleaned up (client disconnected)", log.FieldSession(name), log.FieldConnID(sess.ID()))
	}

	h.peersMu.Lock()
	delete(h.peers, sess.ID())
	h.peersMu.Unlock()

	h.logger.Info("client disconnected", log.FieldConnID(sess.ID()), zap.Stringer("remote", sess.RemoteAddr()), zap.Error(err))
}

// OnError 实现 acceptor.Handler。
func (h *Hub) OnError(sess session.Session, stage network.Stage, err error) {
	if stage == network.StageDecode && errors.Is(err, network.ErrFrameTooLarge) && sess != nil {
		tooLarge := merr.WrapErrRequestTooLarge(h.cfg.MaxFrameSize)
		h.logger.RatedWarn(1, "request dropped", log.FieldConnID(sess.ID()), zap.Error(tooLarge))
		h.reply(sess.Context(), sess, &ErrorResponse{Error: merr.Message(tooLarge)})
		metrics.HubRequestsTotal.WithLabelValues(actionInvalid, merr.GetErrorType(tooLarge).String()).Inc()
		return
	}

	fields := []zap.Field{zap.String("stage", string(stage)), zap.Error(err)}
	if sess != nil {
		fields = append(fields, log.FieldConnID(sess.ID()))
	}
	h.logger.RatedWarn(1, "network error", fields...)
}

func (h *Hub) reply(ctx context.Context, sess session.Session, resp any) {
	if err := sess.Send(resp); err != nil {
		// 应答无法序列化，或请求方自己的队列已满、已关闭，连接无法继续按行应答。
		log.Ctx(ctx).RatedWarn(1, "response dropped, closing connection", zap.Error(err))
		_ = sess.Close()
	}
}

func (h *Hub) logRequestError(ctx context.Context, err error) {
	logger := log.Ctx(ctx)
	if merr.GetErrorType(err) == merr.InputError {
		logger.Debug("request rejected", zap.Error(err))
		return
	}
	logger.RatedWarn(1, "request failed", zap.Error(err))
}

func (h *Hub) actionLabel(req *router.Request, err error) string {
	switch {
	case req == nil:
		return actionInvalid
	case h.actions.Contain(req.Action):
		return req.Action
	case err != nil:
		return actionInvalid
	default:
		return actionUnknown
	}
}

func (h *Hub) peerOf(sess session.Session) *peer {
	h.peersMu.RLock()
	p, ok := h.peers[sess.ID()]
	h.peersMu.RUnlock()
	if ok {
		return p
	}
	return newPeer(sess)
}

// connState 返回连接当前的协议状态，连接不存在时返回 stateIdle。
func (h *Hub) connState(id uint64) connState {
	h.peersMu.RLock()
	defer h.peersMu.RUnlock()
	if p, ok := h.peers[id]; ok {
		return p.State()
	}
	return stateIdle
}
