package framer

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	network "github.com/lk2023060901/switchboard-go/internal/network"
)

func TestLineFramer_ReadFrame(t *testing.T) {
	f := NewLineFramer(0)
	r := bufio.NewReader(strings.NewReader("{\"action\":\"list_sessions\"}\n\r\n{\"a\":1}\r\ntail"))

	frame, err := f.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, `{"action":"list_sessions"}`, string(frame))

	frame, err = f.ReadFrame(r)
	require.NoError(t, err)
	assert.Empty(t, frame)

	frame, err = f.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(frame))

	frame, err = f.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(frame))

	_, err = f.ReadFrame(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineFramer_OversizeLineIsSkipped(t *testing.T) {
	f := NewLineFramer(8)
	// bufio 缓冲区小于行长度，验证跨多次 ReadSlice 的丢弃逻辑。
	input := strings.Repeat("x", 64) + "\n" + "ok\n"
	r := bufio.NewReaderSize(strings.NewReader(input), 16)

	_, err := f.ReadFrame(r)
	assert.ErrorIs(t, err, network.ErrFrameTooLarge)

	frame, err := f.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(frame))
}

func TestLineFramer_ExactLimit(t *testing.T) {
	f := NewLineFramer(4)
	r := bufio.NewReader(strings.NewReader("abcd\nabcde\n"))

	frame, err := f.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(frame))

	_, err = f.ReadFrame(r)
	assert.ErrorIs(t, err, network.ErrFrameTooLarge)
}

func TestLineFramer_WriteFrame(t *testing.T) {
	f := NewLineFramer(16)
	var buf bytes.Buffer

	require.NoError(t, f.WriteFrame(&buf, []byte(`{"sent":true}`)))
	assert.Equal(t, "{\"sent\":true}\n", buf.String())

	assert.ErrorIs(t, f.WriteFrame(&buf, []byte("a\nb")), network.ErrEncodeFailed)

	// 上限只约束读取，超长的输出行照常写出。
	buf.Reset()
	long := bytes.Repeat([]byte("y"), 17)
	require.NoError(t, f.WriteFrame(&buf, long))
	assert.Equal(t, append(long, '\n'), buf.Bytes())
}
