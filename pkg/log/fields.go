package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameConnID    = "connID"
	FieldNameAction    = "action"
	FieldNameSession   = "session"
	FieldNameCaller    = "caller"
	FieldNameTraceID   = "traceID"
	FieldNameFocus     = "focus"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldConnID 返回一个包含连接 ID 的 zap 字段。
func FieldConnID(id uint64) zap.Field {
	return zap.Uint64(FieldNameConnID, id)
}

func FieldAction(action string) zap.Field {
	return zap.String(FieldNameAction, action)
}

func FieldSession(name string) zap.Field {
	return zap.String(FieldNameSession, name)
}

func FieldCaller(name string) zap.Field {
	return zap.String(FieldNameCaller, name)
}

// FieldFocus 记录会话意图，截断到 50 个字符。
func FieldFocus(intent string) zap.Field {
	if r := []rune(intent); len(r) > 50 {
		intent = string(r[:50]) + "..."
	}
	return zap.String(FieldNameFocus, intent)
}
