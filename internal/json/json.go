// Package json 统一项目内的 JSON 编解码入口，底层基于 bytedance/sonic。
//
// 使用 sonic.ConfigStd，行为与标准库 encoding/json 保持兼容（map 键排序、HTML 转义等），
// 便于在不同实现之间切换而不影响线上报文格式。
package json

import (
	stdjson "encoding/json"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// RawMessage 即 encoding/json.RawMessage，用于延迟解码 params 等字段。
type RawMessage = stdjson.RawMessage

// Marshal 将 v 编码为 JSON 字节。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal 将 JSON 字节解码到 v。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Valid 判断 data 是否为合法的 JSON 文本。
func Valid(data []byte) bool {
	return api.Valid(data)
}
