package hub

import (
	"context"

	"github.com/lk2023060901/switchboard-go/internal/network/router"
	"github.com/lk2023060901/switchboard-go/internal/network/session"
	"github.com/lk2023060901/switchboard-go/pkg/log"
)

// registerRoutes 一次性注册全部 action，路由表此后只读。
func (h *Hub) registerRoutes() error {
	routes := []struct {
		action string
		route  router.Route
	}{
		{ActionListen, router.Route{NewRequest: func() any { return &ListenRequest{} }, Handler: h.handleListen}},
		{ActionListSessions, router.Route{NewRequest: func() any { return &ListSessionsRequest{} }, Handler: h.handleListSessions}},
		{ActionConnect, router.Route{NewRequest: func() any { return &ConnectRequest{} }, Handler: h.handleConnect}},
		{ActionSend, router.Route{NewRequest: func() any { return &SendRequest{} }, Handler: h.handleSend}},
		{ActionRespond, router.Route{NewRequest: func() any { return &RespondRequest{} }, Handler: h.handleRespond}},
		{ActionRefocus, router.Route{NewRequest: func() any { return &RefocusRequest{} }, Handler: h.handleRefocus}},
		{ActionEndSession, router.Route{NewRequest: func() any { return &EndSessionRequest{} }, Handler: h.handleEndSession}},
	}
	for _, r := range routes {
		if err := h.router.Register(r.action, r.route); err != nil {
			return err
		}
	}
	return nil
}

// handleListen 注册 session。ack 由 Registry 在持锁期间入队，这里不再返回结果。
func (h *Hub) handleListen(ctx context.Context, sess session.Session, req any) (any, error) {
	r := req.(*ListenRequest)
	if _, err := h.registry.Register(*r.SessionName, *r.Description, h.peerOf(sess), true); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info("session registered and listening", log.FieldSession(*r.SessionName))
	return nil, nil
}

func (h *Hub) handleListSessions(ctx context.Context, sess session.Session, req any) (any, error) {
	result := h.registry.List()
	return &result, nil
}

func (h *Hub) handleConnect(ctx context.Context, sess session.Session, req any) (any, error) {
	r := req.(*ConnectRequest)
	result, err := h.registry.Attach(*r.TargetSession, *r.Intent, *r.MyName, h.peerOf(sess))
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info("caller connected",
		log.FieldCaller(*r.MyName), log.FieldSession(*r.TargetSession), log.FieldFocus(*r.Intent))
	return &result, nil
}

func (h *Hub) handleSend(ctx context.Context, sess session.Session, req any) (any, error) {
	r := req.(*SendRequest)
	result, err := h.registry.Forward(*r.TargetSession, *r.Message, *r.MyName, h.peerOf(sess))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (h *Hub) handleRespond(ctx context.Context, sess session.Session, req any) (any, error) {
	r := req.(*RespondRequest)
	result, err := h.registry.Reply(*r.SessionName, *r.Message)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (h *Hub) handleRefocus(ctx context.Context, sess session.Session, req any) (any, error) {
	r := req.(*RefocusRequest)
	result, err := h.registry.Refocus(*r.SessionName, *r.NewIntent)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info("session refocused", log.FieldSession(*r.SessionName))
	return &result, nil
}

func (h *Hub) handleEndSession(ctx context.Context, sess session.Session, req any) (any, error) {
	r := req.(*EndSessionRequest)
	result := h.registry.End(*r.SessionName)
	log.Ctx(ctx).Info("session ended", log.FieldSession(*r.SessionName))
	return &result, nil
}
