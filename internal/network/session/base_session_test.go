package session

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	network "github.com/lk2023060901/switchboard-go/internal/network"
	"github.com/lk2023060901/switchboard-go/internal/network/codec"
)

type pushMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newPipeSession(t *testing.T, opts ...Option) (*BaseSession, *bufio.Reader, net.Conn) {
	server, client := net.Pipe()
	sess := NewBaseSession(context.Background(), NextID(), server, codec.NewJSONLine(0), opts...)
	t.Cleanup(func() {
		_ = sess.Close()
		_ = client.Close()
	})
	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	return sess, bufio.NewReader(client), client
}

func TestBaseSession_SendWritesLines(t *testing.T) {
	sess, r, _ := newPipeSession(t)

	require.NoError(t, sess.Send(pushMsg{Type: "message", Message: "hello"}))
	require.NoError(t, sess.Send(map[string]any{"status": "ok"}))

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","message":"hello"}`, line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, line)
}

func TestBaseSession_SendIgnoresReadLimit(t *testing.T) {
	server, client := net.Pipe()
	sess := NewBaseSession(context.Background(), NextID(), server, codec.NewJSONLine(64))
	t.Cleanup(func() {
		_ = sess.Close()
		_ = client.Close()
	})
	r := bufio.NewReader(client)

	// '<' 会被转义为 \u003c，编码后的行远超读取上限。
	body := strings.Repeat("<", 60)
	require.NoError(t, sess.Send(pushMsg{Type: "message", Message: body}))

	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Greater(t, len(line), 64)
	assert.JSONEq(t, `{"type":"message","message":"`+body+`"}`, line)
}

func TestBaseSession_SendUnencodable(t *testing.T) {
	sess, _, _ := newPipeSession(t)

	err := sess.Send(map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrEncodeFailed))
	assert.False(t, sess.Closed())
}

func TestBaseSession_SendAfterClose(t *testing.T) {
	sess, _, _ := newPipeSession(t)

	require.NoError(t, sess.Close())
	assert.True(t, sess.Closed())
	assert.ErrorIs(t, sess.Send(pushMsg{Type: "timeout"}), network.ErrSessionClosed)
	// 幂等
	assert.NoError(t, sess.Close())
}

func TestBaseSession_QueueFull(t *testing.T) {
	// 对端不读取，发送协程阻塞在第一条消息上，队列很快被填满。
	sess, _, _ := newPipeSession(t, WithSendQueueSize(1))

	var full error
	for i := 0; i < 8 && full == nil; i++ {
		full = sess.Send(pushMsg{Type: "message", Message: "x"})
	}
	require.Error(t, full)
	assert.True(t, errors.Is(full, network.ErrSendQueueFull))
}

func TestBaseSession_WriteTimeoutClosesSession(t *testing.T) {
	sess, _, _ := newPipeSession(t, WithWriteTimeout(20*time.Millisecond))

	require.NoError(t, sess.Send(pushMsg{Type: "message", Message: "never read"}))
	require.Eventually(t, sess.Closed, time.Second, 5*time.Millisecond)
	<-sess.Context().Done()
}

func TestBaseSession_PeerCloseFailsLoop(t *testing.T) {
	sess, _, client := newPipeSession(t)

	require.NoError(t, client.Close())
	require.NoError(t, sess.Send(pushMsg{Type: "message", Message: "lost"}))
	require.Eventually(t, sess.Closed, time.Second, 5*time.Millisecond)
}

func TestNextIDIsUnique(t *testing.T) {
	a, b := NextID(), NextID()
	assert.NotEqual(t, a, b)
	assert.Greater(t, b, a)
}
