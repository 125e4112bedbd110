package codec

import (
	"bufio"
	"io"

	"github.com/cockroachdb/errors"

	network "github.com/lk2023060901/switchboard-go/internal/network"
	"github.com/lk2023060901/switchboard-go/internal/network/framer"
	"github.com/lk2023060901/switchboard-go/internal/network/serializer"
)

// Codec 抽象了“从业务对象到网络帧，以及从网络帧回到业务对象”的完整编解码流程。
//
// Pipeline（写出 Encode）：
//   msg --> serializer --> framer.WriteFrame（追加 '\n'）
//
// Pipeline（读入 Decode）：
//   framer.ReadFrame --> serializer --> msg
type Codec interface {
	// Encode 将业务对象编码为一行 JSON 并写入到底层流。
	Encode(w io.Writer, msg any) error
	// Marshal 将业务对象序列化为一帧（不含行尾）。
	Marshal(msg any) ([]byte, error)
	// WriteFrame 将 Marshal 得到的一帧写入底层流并追加换行。
	WriteFrame(w io.Writer, frame []byte) error

	// Decode 从底层流中读取一行，并解码到 msg 中。
	Decode(r *bufio.Reader, msg any) error

	// DecodeRaw 从底层流中读取一行，返回未经反序列化的原始字节。
	DecodeRaw(r *bufio.Reader) ([]byte, error)

	// Unmarshal 将 DecodeRaw 得到的字节反序列化到 msg 中。
	Unmarshal(data []byte, msg any) error
}

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	Framer     framer.Framer
	Serializer serializer.Serializer
}

type codec struct {
	framer     framer.Framer
	serializer serializer.Serializer
}

var _ Codec = (*codec)(nil)

// New 创建一个基于给定依赖的 Codec。
func New(opts Options) (Codec, error) {
	if opts.Framer == nil {
		return nil, errors.New("codec: framer is nil")
	}
	if opts.Serializer == nil {
		return nil, errors.New("codec: serializer is nil")
	}

	return &codec{
		framer:     opts.Framer,
		serializer: opts.Serializer,
	}, nil
}

// NewJSONLine 返回按行分帧、JSON 序列化的 Codec，maxFrameSize 为 0 时使用默认上限。
func NewJSONLine(maxFrameSize int) Codec {
	return &codec{
		framer:     framer.NewLineFramer(maxFrameSize),
		serializer: serializer.JSONSerializer{},
	}
}

// Encode 实现 Codec.Encode。
func (c *codec) Encode(w io.Writer, msg any) error {
	body, err := c.Marshal(msg)
	if err != nil {
		return err
	}
	return c.WriteFrame(w, body)
}

// Marshal 实现 Codec.Marshal。
func (c *codec) Marshal(msg any) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("codec: msg is nil")
	}
	body, err := c.serializer.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(network.ErrEncodeFailed, "codec: marshal %T failed: %v", msg, err)
	}
	return body, nil
}

// WriteFrame 实现 Codec.WriteFrame。
func (c *codec) WriteFrame(w io.Writer, frame []byte) error {
	if w == nil {
		return errors.New("codec: writer is nil")
	}
	if err := c.framer.WriteFrame(w, frame); err != nil {
		return errors.Wrap(err, "codec: write frame failed")
	}
	return nil
}

// DecodeRaw 实现 Codec.DecodeRaw。
func (c *codec) DecodeRaw(r *bufio.Reader) ([]byte, error) {
	if r == nil {
		return nil, errors.New("codec: reader is nil")
	}
	return c.framer.ReadFrame(r)
}

// Unmarshal 实现 Codec.Unmarshal。
func (c *codec) Unmarshal(data []byte, msg any) error {
	if err := c.serializer.Unmarshal(data, msg); err != nil {
		return errors.Wrapf(network.ErrDecodeFailed, "codec: unmarshal failed: %v", err)
	}
	return nil
}

// Decode 实现 Codec.Decode。
func (c *codec) Decode(r *bufio.Reader, msg any) error {
	data, err := c.DecodeRaw(r)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	return c.Unmarshal(data, msg)
}
