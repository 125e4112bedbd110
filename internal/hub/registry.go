package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/switchboard-go/pkg/log"
	"github.com/lk2023060901/switchboard-go/pkg/metrics"
	"github.com/lk2023060901/switchboard-go/pkg/util/merr"
	"github.com/lk2023060901/switchboard-go/pkg/util/typeutil"
)

// Conn 是 Registry 对一条连接的最小要求，session.Session 满足该接口。
//
// Send 必须是非阻塞的：Registry 在持锁期间调用它，只负责把消息放进对端的发送队列。
type Conn interface {
	ID() uint64
	Send(msg any) error
	Closed() bool
}

// Session 为一个已注册的监听端点。
type Session struct {
	Name        string
	Description string

	owner           Conn
	caller          *string
	intent          *string
	lastActivity    time.Time
	guidelinesShown bool
}

// Busy 表示当前是否有调用方接入。
func (s *Session) Busy() bool {
	return s.caller != nil
}

// Registry 维护 session 名称到 Session、调用方名称到连接的映射。
//
// 所有操作在整个执行期间持有同一把互斥锁；向对端的投递只做非阻塞入队，
// 真正的网络写由对端连接自己的发送协程完成，因此慢连接不会拖住其它操作。
type Registry struct {
	mu sync.Mutex

	sessions map[string]*Session
	// callers 为弱引用：connect/send 时覆盖写入，从不删除。
	callers map[string]Conn
	// owned 为连接 ID 到其拥有的 session 名称集合，用于断线清理。
	owned map[uint64]typeutil.Set[string]

	idleTimeout time.Duration
	clock       func() time.Time
	logger      *log.MLogger
}

// RegistryOption 用于配置 Registry。
type RegistryOption func(*Registry)

// WithClock 替换时间来源，主要用于测试。
func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// NewRegistry 创建一个空的 Registry，idleTimeout 同时用于空闲回收与横幅中的提示文本。
func NewRegistry(idleTimeout time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		callers:     make(map[string]Conn),
		owned:       make(map[uint64]typeutil.Set[string]),
		idleTimeout: idleTimeout,
		clock:       time.Now,
		logger:      log.With(log.FieldModule("hub"), log.FieldComponent("registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IdleTimeout 返回空闲回收阈值。
func (r *Registry) IdleTimeout() time.Duration {
	return r.idleTimeout
}

// Register 注册一个监听端点。
//
// ack 为 true 时在持锁期间把结果放入所有者的发送队列，
// 保证 ack 一定先于任何投递给该 session 的消息写出。
func (r *Registry) Register(name, description string, owner Conn, ack bool) (ListenResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[name]; ok {
		return ListenResult{}, merr.WrapErrSessionAlreadyExists(name)
	}

	result := ListenResult{Status: "listening", Session: name}
	if ack {
		if err := owner.Send(&result); err != nil {
			return ListenResult{}, merr.WrapErrDeliveryFailed("Failed to acknowledge listen", err)
		}
	}

	r.sessions[name] = &Session{
		Name:         name,
		Description:  description,
		owner:        owner,
		lastActivity: r.clock(),
	}
	names, ok := r.owned[owner.ID()]
	if !ok {
		names = typeutil.NewSet[string]()
		r.owned[owner.ID()] = names
	}
	names.Insert(name)
	r.updateGauge()
	return result, nil
}

// List 返回所有 session 的快照，按名称排序。
func (r *Registry) List() ListResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := lo.MapToSlice(r.sessions, func(name string, s *Session) SessionInfo {
		return SessionInfo{Name: name, Description: s.Description, Busy: s.Busy()}
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return ListResult{Sessions: infos}
}

// Attach 将调用方接入目标 session。
//
// 目标已被其他调用方占用时返回 Busy；同名调用方重复接入视为成功，只更新意图。
// 新调用方接入时重新开启对话守则的展示。
func (r *Registry) Attach(target, intent, callerName string, callerConn Conn) (ConnectResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[target]
	if !ok {
		return ConnectResult{}, merr.WrapErrSessionNotFound(target)
	}
	if s.caller != nil && *s.caller != callerName {
		return ConnectResult{}, merr.WrapErrSessionBusy(target, *s.caller)
	}

	if s.caller == nil {
		s.guidelinesShown = false
	}
	s.caller = lo.ToPtr(callerName)
	s.intent = lo.ToPtr(intent)
	r.callers[callerName] = callerConn

	return ConnectResult{
		Connected:    true,
		Target:       target,
		Intent:       intent,
		IntentBanner: FormatIntentBanner(intent, true, r.idleTimeout),
	}, nil
}

// Forward 把调用方的消息投递给 session 所有者。
//
// 只要 session 存在就会刷新调用方映射与活跃时间；会话带有意图时附带横幅，
// 对话守则在每次接入后只随第一条成功投递的消息出现一次。
func (r *Registry) Forward(target, message, callerName string, callerConn Conn) (SentResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[target]
	if !ok {
		return SentResult{}, merr.WrapErrSessionNotFound(target)
	}

	r.callers[callerName] = callerConn
	s.lastActivity = r.clock()

	push := &MessagePush{
		Type:    PushMessage,
		From:    callerName,
		Message: message,
		Intent:  s.intent,
	}
	withGuidelines := !s.guidelinesShown
	if s.intent != nil {
		push.IntentBanner = lo.ToPtr(FormatIntentBanner(*s.intent, withGuidelines, r.idleTimeout))
	}

	if err := r.deliver(s.owner, PushMessage, push); err != nil {
		return SentResult{}, merr.WrapErrDeliveryFailed("Failed to send to listener", err)
	}
	if s.intent != nil {
		s.guidelinesShown = true
	}
	return SentResult{Sent: true, To: target}, nil
}

// Reply 把 session 所有者的回复投递给当前调用方。
func (r *Registry) Reply(sessionName, message string) (SentResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionName]
	if !ok {
		return SentResult{}, merr.WrapErrSessionNotFound(sessionName)
	}
	if s.caller == nil {
		return SentResult{}, merr.WrapErrSessionNoCaller(sessionName)
	}
	callerName := *s.caller
	conn, ok := r.callers[callerName]
	if !ok || conn == nil || conn.Closed() {
		return SentResult{}, merr.WrapErrSessionCallerLost(sessionName, callerName)
	}

	s.lastActivity = r.clock()

	push := &ResponsePush{Type: PushResponse, From: sessionName, Message: message}
	if err := r.deliver(conn, PushResponse, push); err != nil {
		return SentResult{}, merr.WrapErrDeliveryFailed("Failed to send response", err)
	}
	return SentResult{Sent: true, To: callerName}, nil
}

// Refocus 替换 session 的意图，并尽力通知当前调用方，通知失败不影响结果。
func (r *Registry) Refocus(sessionName, newIntent string) (RefocusResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionName]
	if !ok {
		return RefocusResult{}, merr.WrapErrSessionNotFound(sessionName)
	}

	oldIntent := s.intent
	s.intent = lo.ToPtr(newIntent)
	s.lastActivity = r.clock()
	banner := FormatIntentBanner(newIntent, true, r.idleTimeout)

	if s.caller != nil {
		if conn, ok := r.callers[*s.caller]; ok && conn != nil {
			push := &RefocusPush{Type: PushRefocus, NewIntent: newIntent, IntentBanner: banner}
			if err := r.deliver(conn, PushRefocus, push); err != nil {
				r.logger.Debug("refocus notice dropped", log.FieldSession(sessionName), log.FieldCaller(*s.caller), zap.Error(err))
			}
		}
	}

	return RefocusResult{
		Updated:      true,
		OldIntent:    oldIntent,
		NewIntent:    newIntent,
		IntentBanner: banner,
	}, nil
}

// End 移除 session，不存在时同样视为成功。
func (r *Registry) End(sessionName string) ClosedResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionName]; ok {
		r.removeLocked(s)
	}
	return ClosedResult{Closed: true, Session: sessionName}
}

// Sweep 移除所有空闲时间超过阈值的 session，移除前尽力向所有者发送超时通知。
// 返回被移除的名称，按字典序排列。
//
// 所有者连接保持打开：一条连接可以同时拥有多个 session 并兼作调用方，
// 只有过期的 session 被移除，所有者仍可在同一连接上重新 listen。
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := lo.Filter(lo.Values(r.sessions), func(s *Session, _ int) bool {
		return now.Sub(s.lastActivity) > r.idleTimeout
	})
	if len(expired) == 0 {
		return nil
	}

	notice := timeoutNotice(r.idleTimeout)
	names := make([]string, 0, len(expired))
	for _, s := range expired {
		push := &TimeoutPush{Type: PushTimeout, Message: notice}
		if err := r.deliver(s.owner, PushTimeout, push); err != nil {
			r.logger.Debug("timeout notice dropped", log.FieldSession(s.Name), zap.Error(err))
		}
		r.removeLocked(s)
		names = append(names, s.Name)
	}
	sort.Strings(names)
	metrics.HubEvictionsTotal.Add(float64(len(names)))
	return names
}

// RemoveOwnedBy 移除 conn 拥有的全部 session，用于连接断开后的清理。
func (r *Registry) RemoveOwnedBy(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, ok := r.owned[conn.ID()]
	if !ok {
		return nil
	}
	removed := typeutil.Sorted(names)
	for _, name := range removed {
		if s, ok := r.sessions[name]; ok {
			r.removeLocked(s)
		}
	}
	delete(r.owned, conn.ID())
	return removed
}

// Len 返回当前 session 数量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// touch 强制设置 session 的活跃时间，供测试构造空闲场景。
func (r *Registry) touch(sessionName string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionName]
	if ok {
		s.lastActivity = at
	}
	return ok
}

func (r *Registry) removeLocked(s *Session) {
	delete(r.sessions, s.Name)
	if names, ok := r.owned[s.owner.ID()]; ok {
		names.Remove(s.Name)
		if names.Len() == 0 {
			delete(r.owned, s.owner.ID())
		}
	}
	r.updateGauge()
}

func (r *Registry) deliver(conn Conn, pushType string, msg any) error {
	err := conn.Send(msg)
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultDropped
	}
	metrics.HubDeliveriesTotal.WithLabelValues(pushType, result).Inc()
	return err
}

func (r *Registry) updateGauge() {
	metrics.HubSessions.Set(float64(len(r.sessions)))
}
