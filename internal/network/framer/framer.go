package framer

import (
	"bufio"
	"bytes"
	"io"

	"github.com/cockroachdb/errors"

	network "github.com/lk2023060901/switchboard-go/internal/network"
)

// Framer 抽象了基于“行”的打包/解包能力。
//
// 约定：
//   - 一帧数据即一行 UTF-8 文本，以 '\n' 结尾，帧内容本身不包含换行；
//   - 读取时兼容 "\r\n" 结尾；
//   - 写出时总是追加单个 '\n'。
type Framer interface {
	// WriteFrame 将一帧数据写入 w，并追加换行符。
	WriteFrame(w io.Writer, frame []byte) error

	// ReadFrame 从 r 中读取一帧数据（不含行尾）。
	//
	// 超过最大长度的行会被完整读完并丢弃，返回 network.ErrFrameTooLarge，
	// 调用方可以继续读取下一帧。
	ReadFrame(r *bufio.Reader) ([]byte, error)
}

// LineFramer 使用 '\n' 作为帧边界，适用于 TCP 等基于流的连接。
type LineFramer struct {
	// MaxFrameSize 为读取时允许的最大帧大小（不含行尾），单位字节。
	// 为 0 时使用默认值 DefaultMaxFrameSize。写出不受该上限约束。
	MaxFrameSize int
}

// DefaultMaxFrameSize 为单行请求的默认上限。
const DefaultMaxFrameSize = 1024 * 1024 // 1MB

var newline = []byte{'\n'}

// NewLineFramer 创建一个按行分帧的 Framer。
// maxFrameSize 为 0 时使用默认值。
func NewLineFramer(maxFrameSize int) *LineFramer {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &LineFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// WriteFrame 实现 Framer.WriteFrame。
func (f *LineFramer) WriteFrame(w io.Writer, frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		return errors.Wrap(network.ErrEncodeFailed, "framer: frame contains newline")
	}
	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "framer: write frame failed")
	}
	if _, err := w.Write(newline); err != nil {
		return errors.Wrap(err, "framer: write newline failed")
	}
	return nil
}

// ReadFrame 实现 Framer.ReadFrame。
//
// 流结束时若还有未以换行结尾的残余数据，则将其作为最后一帧返回，下一次调用返回 io.EOF。
func (f *LineFramer) ReadFrame(r *bufio.Reader) ([]byte, error) {
	limit := f.effectiveMaxSize()

	var (
		frame    []byte
		oversize bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversize {
			if len(frame)+len(trimEOL(chunk)) > limit {
				oversize = true
				frame = nil
			} else {
				frame = append(frame, chunk...)
			}
		}

		switch {
		case err == nil:
			if oversize {
				return nil, errors.Wrapf(network.ErrFrameTooLarge, "framer: line exceeds max %d", limit)
			}
			return trimEOL(frame), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(frame) > 0 && !oversize:
			return trimEOL(frame), nil
		default:
			return nil, err
		}
	}
}

func (f *LineFramer) effectiveMaxSize() int {
	if f == nil || f.MaxFrameSize <= 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, newline)
	return bytes.TrimSuffix(b, []byte{'\r'})
}
