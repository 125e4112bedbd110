package hub

import (
	"github.com/samber/lo"

	"github.com/lk2023060901/switchboard-go/pkg/util/merr"
)

// 支持的 action 名称。
const (
	ActionListen       = "listen"
	ActionListSessions = "list_sessions"
	ActionConnect      = "connect"
	ActionSend         = "send"
	ActionRespond      = "respond"
	ActionRefocus      = "refocus"
	ActionEndSession   = "end_session"
)

// 推送消息的 type 字段取值。
const (
	PushMessage  = "message"
	PushResponse = "response"
	PushRefocus  = "refocus"
	PushTimeout  = "timeout"
)

// 请求参数。字段均为指针，用于区分“缺失”与“空字符串”。

type ListenRequest struct {
	SessionName *string `json:"session_name"`
	Description *string `json:"description"`
}

func (r *ListenRequest) Validate() error {
	return firstErr(
		requireName("session_name", r.SessionName),
		requireString("description", r.Description),
	)
}

type ListSessionsRequest struct{}

type ConnectRequest struct {
	TargetSession *string `json:"target_session"`
	Intent        *string `json:"intent"`
	MyName        *string `json:"my_name"`
}

func (r *ConnectRequest) Validate() error {
	return firstErr(
		requireName("target_session", r.TargetSession),
		requireString("intent", r.Intent),
		requireName("my_name", r.MyName),
	)
}

type SendRequest struct {
	TargetSession *string `json:"target_session"`
	Message       *string `json:"message"`
	MyName        *string `json:"my_name"`
}

func (r *SendRequest) Validate() error {
	return firstErr(
		requireName("target_session", r.TargetSession),
		requireString("message", r.Message),
		requireName("my_name", r.MyName),
	)
}

type RespondRequest struct {
	SessionName *string `json:"session_name"`
	Message     *string `json:"message"`
}

func (r *RespondRequest) Validate() error {
	return firstErr(
		requireName("session_name", r.SessionName),
		requireString("message", r.Message),
	)
}

type RefocusRequest struct {
	SessionName *string `json:"session_name"`
	NewIntent   *string `json:"new_intent"`
}

func (r *RefocusRequest) Validate() error {
	return firstErr(
		requireName("session_name", r.SessionName),
		requireString("new_intent", r.NewIntent),
	)
}

type EndSessionRequest struct {
	SessionName *string `json:"session_name"`
}

func (r *EndSessionRequest) Validate() error {
	return requireName("session_name", r.SessionName)
}

// 请求结果。

type ListenResult struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

type SessionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Busy        bool   `json:"busy"`
}

type ListResult struct {
	Sessions []SessionInfo `json:"sessions"`
}

type ConnectResult struct {
	Connected    bool   `json:"connected"`
	Target       string `json:"target"`
	Intent       string `json:"intent"`
	IntentBanner string `json:"intent_banner"`
}

type SentResult struct {
	Sent bool   `json:"sent"`
	To   string `json:"to"`
}

type RefocusResult struct {
	Updated      bool    `json:"updated"`
	OldIntent    *string `json:"old_intent"`
	NewIntent    string  `json:"new_intent"`
	IntentBanner string  `json:"intent_banner"`
}

type ClosedResult struct {
	Closed  bool   `json:"closed"`
	Session string `json:"session"`
}

// ErrorResponse 为所有失败请求的响应行。
type ErrorResponse struct {
	Error string `json:"error"`
}

// 推送消息，由 hub 主动写到对端连接上。

// MessagePush 由 send 投递给 session 所有者，intent 与 intent_banner 无值时为 null。
type MessagePush struct {
	Type         string  `json:"type"`
	From         string  `json:"from"`
	Message      string  `json:"message"`
	Intent       *string `json:"intent"`
	IntentBanner *string `json:"intent_banner"`
}

type ResponsePush struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Message string `json:"message"`
}

type RefocusPush struct {
	Type         string `json:"type"`
	NewIntent    string `json:"new_intent"`
	IntentBanner string `json:"intent_banner"`
}

type TimeoutPush struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func requireString(field string, v *string) error {
	if v == nil {
		return merr.WrapErrParameterMissing(field)
	}
	return nil
}

func requireName(field string, v *string) error {
	if v == nil {
		return merr.WrapErrParameterMissing(field)
	}
	if *v == "" {
		return merr.WrapErrParameterEmpty(field)
	}
	return nil
}

func firstErr(errs ...error) error {
	err, _ := lo.Find(errs, func(err error) bool { return err != nil })
	return err
}
