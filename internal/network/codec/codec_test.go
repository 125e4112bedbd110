package codec

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	network "github.com/lk2023060901/switchboard-go/internal/network"
	"github.com/lk2023060901/switchboard-go/internal/network/framer"
	"github.com/lk2023060901/switchboard-go/internal/network/serializer"
)

type pushEnvelope struct {
	Type    string  `json:"type"`
	From    string  `json:"from"`
	Message string  `json:"message"`
	Intent  *string `json:"intent"`
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Serializer: serializer.JSONSerializer{}})
	assert.Error(t, err)
	_, err = New(Options{Framer: framer.NewLineFramer(0)})
	assert.Error(t, err)

	c, err := New(Options{Framer: framer.NewLineFramer(0), Serializer: serializer.JSONSerializer{}})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestEncodeDecode(t *testing.T) {
	c := NewJSONLine(0)
	var buf bytes.Buffer

	msg := pushEnvelope{Type: "message", From: "bob", Message: "line one\nline two"}
	require.NoError(t, c.Encode(&buf, msg))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"), "embedded newlines must be escaped")
	assert.Contains(t, buf.String(), `"intent":null`)

	var got pushEnvelope
	r := bufio.NewReader(&buf)
	require.NoError(t, c.Decode(r, &got))
	assert.Equal(t, msg, got)

	assert.ErrorIs(t, c.Decode(r, &got), io.EOF)
}

func TestDecode_Malformed(t *testing.T) {
	c := NewJSONLine(0)
	r := bufio.NewReader(strings.NewReader("not json\n{\"type\":\"timeout\"}\n"))

	var got pushEnvelope
	assert.ErrorIs(t, c.Decode(r, &got), network.ErrDecodeFailed)

	require.NoError(t, c.Decode(r, &got))
	assert.Equal(t, "timeout", got.Type)
}

func TestEncode_Nil(t *testing.T) {
	c := NewJSONLine(0)
	assert.Error(t, c.Encode(&bytes.Buffer{}, nil))
	assert.Error(t, c.Encode(nil, struct{}{}))
}
