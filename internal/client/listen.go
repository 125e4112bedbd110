package client

import (
	"context"
)

// ListenState 为 listen 两段式调用的进度。
type ListenState int

const (
	// ListenAwaitingAck 表示请求已发出，等待 {"status":"listening"}。
	ListenAwaitingAck ListenState = iota
	// ListenAwaitingDelivery 表示 ack 已收到，等待第一条推送。
	ListenAwaitingDelivery
	// ListenDelivered 表示推送已到达，调用结束。
	ListenDelivered
)

func (s ListenState) String() string {
	switch s {
	case ListenAwaitingAck:
		return "awaiting_ack"
	case ListenAwaitingDelivery:
		return "awaiting_delivery"
	case ListenDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// ListenCall 记录一次 listen 调用的结果。
type ListenCall struct {
	State ListenState
	// Ack 为第一行响应；注册失败时其中带有错误。
	Ack Reply
	// Delivery 为 ack 之后到达的第一条推送，State 为 ListenDelivered 时有效。
	Delivery Reply
}

// Listen 注册 session 并阻塞到第一条推送到达。
//
// 两段式调用：先读 ack，ack 为错误时直接返回（State 停留在 ListenAwaitingAck）；
// 否则进入 ListenAwaitingDelivery，读到推送后进入 ListenDelivered。
// ctx 结束时返回已到达的阶段与错误，连接会被丢弃。
func (c *Client) Listen(ctx context.Context, sessionName, description string) (ListenCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := ListenCall{State: ListenAwaitingAck}
	params := map[string]string{"session_name": sessionName, "description": description}
	if err := c.writeRequestLocked(ctx, "listen", params); err != nil {
		return call, err
	}

	ack, err := c.readResponseLocked(ctx)
	if err != nil {
		return call, err
	}
	call.Ack = ack
	if ack.Err() != nil {
		return call, nil
	}

	call.State = ListenAwaitingDelivery
	delivery, err := c.nextPushLocked(ctx)
	if err != nil {
		return call, err
	}
	call.Delivery = delivery
	call.State = ListenDelivered
	return call, nil
}
