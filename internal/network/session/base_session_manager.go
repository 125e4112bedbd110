package session

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// BaseSessionManager 提供了基于内存 map 的 Manager 实现。
//
// 特性：
//   - 使用读写锁保证并发安全；
//   - Register 在遇到重复 ID 时返回错误，避免覆盖旧会话；
//   - Range 在遍历前复制一份会话切片，避免在持锁情况下执行回调。
type BaseSessionManager struct {
	mu       sync.RWMutex
	sessions map[uint64]Session
}

var _ Manager = (*BaseSessionManager)(nil)

// NewBaseSessionManager 创建一个空的 BaseSessionManager。
func NewBaseSessionManager() *BaseSessionManager {
	return &BaseSessionManager{
		sessions: make(map[uint64]Session),
	}
}

// Register 实现 Manager.Register。
func (m *BaseSessionManager) Register(sess Session) error {
	if sess == nil {
		return nil
	}
	id := sess.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return errors.Newf("session: id %d already registered", id)
	}
	m.sessions[id] = sess
	return nil
}

// Get 实现 Manager.Get。
func (m *BaseSessionManager) Get(id uint64) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	return sess, ok
}

// Unregister 实现 Manager.Unregister。
func (m *BaseSessionManager) Unregister(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return errors.Newf("session: id %d not found", id)
	}
	delete(m.sessions, id)
	return nil
}

// Range 实现 Manager.Range。
func (m *BaseSessionManager) Range(fn func(sess Session) bool) {
	if fn == nil {
		return
	}

	m.mu.RLock()
	snapshot := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		snapshot = append(snapshot, sess)
	}
	m.mu.RUnlock()

	for _, sess := range snapshot {
		if !fn(sess) {
			return
		}
	}
}

// Count 实现 Manager.Count。
func (m *BaseSessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll 关闭当前所有会话，用于进程退出时的清理。
func (m *BaseSessionManager) CloseAll() {
	m.Range(func(sess Session) bool {
		_ = sess.Close()
		return true
	})
}
