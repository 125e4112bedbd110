package router

import (
	"bytes"
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/switchboard-go/internal/json"
	"github.com/lk2023060901/switchboard-go/internal/network/serializer"
	"github.com/lk2023060901/switchboard-go/internal/network/session"
	"github.com/lk2023060901/switchboard-go/pkg/util/merr"
)

// Handler 是框架暴露给业务层的通用处理函数签名。
//
// 说明：
//   - ctx ：本次请求的上下文，携带日志字段与 trace span；
//   - sess：发起请求的会话，用于关联调用方连接；
//   - req ：已经反序列化并通过校验的请求对象，具体类型由 Route.NewRequest 决定；
//   - 返回：
//   - resp：写回给请求方的结果对象；
//   - err ：业务执行失败时的错误，由上层转换为 {"error": ...} 行。
type Handler func(ctx context.Context, sess session.Session, req any) (resp any, err error)

// Validator 由请求类型可选实现，在调用 Handler 前执行参数校验。
type Validator interface {
	Validate() error
}

// Route 描述一条路由规则：action 名称 -> 请求类型 + 业务 Handler。
type Route struct {
	// NewRequest 用于创建一个空的请求对象实例。
	//
	// 要求：
	//   - 必须返回指向具体请求类型的指针（例如：func() any { return &ListenRequest{} }）。
	NewRequest func() any

	// Handler 为业务层实现的处理函数。
	Handler Handler
}

// Request 为一行请求的外层结构：{"action": string, "params": object}。
type Request struct {
	Action string
	Params json.RawMessage
}

// Router 维护 action 到路由规则的映射，并负责从“原始行”到业务 Handler 的完整调度流程。
//
// 典型调用链（服务器侧）：
//  1. acceptor 从底层连接读取出一行原始字节；
//  2. 上层调用 Router.Dispatch(ctx, sess, frame)；
//  3. Router 解析外层结构，根据 action 找到 Route：
//     - NewRequest() 创建请求对象；
//     - 使用 Serializer.Unmarshal(params, req) 反序列化；
//     - 若请求实现了 Validator，则先行校验；
//     - 调用业务 Handler(ctx, sess, req) 并返回其结果。
type Router interface {
	// Register 为 action 注册一条路由规则，同一 action 不允许重复注册。
	Register(action string, route Route) error

	// Decode 解析一行请求的外层结构。
	Decode(frame []byte) (*Request, error)

	// Handle 处理一条已解析的请求。
	Handle(ctx context.Context, sess session.Session, req *Request) (any, error)

	// Dispatch 等价于 Decode 后接 Handle。
	Dispatch(ctx context.Context, sess session.Session, frame []byte) (any, error)

	// Actions 返回已注册的 action 名称，按字典序排列。
	Actions() []string
}

// defaultRouter 是 Router 接口的基础实现。
//
// 路由表在启动阶段一次性注册完成，之后只读，因此不需要加锁。
type defaultRouter struct {
	ser    serializer.Serializer
	routes map[string]Route
}

// 编译期断言：确保 defaultRouter 实现了 Router 接口。
var _ Router = (*defaultRouter)(nil)

// New 创建一个基于给定 Serializer 的 Router 实例。
func New(ser serializer.Serializer) Router {
	if ser == nil {
		ser = serializer.JSONSerializer{}
	}
	return &defaultRouter{
		ser:    ser,
		routes: make(map[string]Route),
	}
}

// Register 实现 Router.Register。
func (r *defaultRouter) Register(action string, route Route) error {
	if action == "" {
		return errors.New("router: action must not be empty")
	}
	if route.NewRequest == nil {
		return errors.Newf("router: NewRequest is nil for action=%s", action)
	}
	if route.Handler == nil {
		return errors.Newf("router: Handler is nil for action=%s", action)
	}
	if _, exists := r.routes[action]; exists {
		return errors.Newf("router: action=%s already registered", action)
	}
	r.routes[action] = route
	return nil
}

type envelope struct {
	Action json.RawMessage `json:"action"`
	Params json.RawMessage `json:"params"`
}

var (
	nullLiteral = []byte("null")
	emptyObject = json.RawMessage("{}")
)

// Decode 实现 Router.Decode。
//
// 规则：
//   - 非法 JSON 或顶层不是对象：merr.ErrInvalidRequest（"Invalid JSON"）；
//   - 缺少 action 或为 null：Missing required parameter: action；
//   - 缺少 params 或为 null：视为 {}；
//   - params 不是对象：Invalid parameter。
func (r *defaultRouter) Decode(frame []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, merr.WrapErrInvalidRequest()
	}
	var env envelope
	if err := r.ser.Unmarshal(trimmed, &env); err != nil {
		return nil, merr.WrapErrInvalidRequest()
	}

	if isAbsent(env.Action) {
		return nil, merr.WrapErrParameterMissing("action")
	}
	var action string
	if err := r.ser.Unmarshal(env.Action, &action); err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("action must be a string")
	}

	params := env.Params
	if isAbsent(params) {
		params = emptyObject
	} else if bytes.TrimSpace(params)[0] != '{' {
		return &Request{Action: action}, merr.WrapErrParameterInvalidMsg("params must be an object")
	}
	return &Request{Action: action, Params: params}, nil
}

// Handle 实现 Router.Handle。
func (r *defaultRouter) Handle(ctx context.Context, sess session.Session, req *Request) (any, error) {
	if req == nil {
		return nil, merr.WrapErrInvalidRequest()
	}
	route, ok := r.routes[req.Action]
	if !ok {
		return nil, merr.WrapErrUnknownAction(req.Action)
	}

	// 1. 构造请求对象并反序列化。
	params := route.NewRequest()
	if params == nil {
		return nil, merr.WrapErrServiceInternal("NewRequest returned nil", req.Action)
	}
	if err := r.ser.Unmarshal(req.Params, params); err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("malformed params for %s", req.Action)
	}

	// 2. 参数校验。
	if v, ok := params.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	// 3. 调用业务 Handler。
	return route.Handler(ctx, sess, params)
}

// Dispatch 实现 Router.Dispatch。
func (r *defaultRouter) Dispatch(ctx context.Context, sess session.Session, frame []byte) (any, error) {
	req, err := r.Decode(frame)
	if err != nil {
		return nil, err
	}
	return r.Handle(ctx, sess, req)
}

// Actions 实现 Router.Actions。
func (r *defaultRouter) Actions() []string {
	actions := make([]string, 0, len(r.routes))
	for action := range r.routes {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullLiteral)
}
