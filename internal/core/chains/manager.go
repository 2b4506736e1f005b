package chains

import (
	"errors"
	"sync"

	"github.com/nejmd/thrill/pkg/types"
)

// ErrNoSuchChain 指定 id 没有缓冲链
//
// Chain 对不存在的 id 采取 fail-fast：调用方应先用 Contains
// 检查，而不是依赖隐式创建。
var ErrNoSuchChain = errors.New("no buffer chain for channel")

// Manager 缓冲链管理器
//
// 按通道 id 索引缓冲链，三个事实可独立查询：通道对象是否存在
// （由多路复用器回答）、缓冲链是否存在（Contains）、链的内容
// （Chain）。reactor 回调与 worker 线程并发调用，所有操作
// 并发安全。
type Manager struct {
	mu     sync.RWMutex
	chains map[types.ChannelID]*BufferChain
	nextID types.ChannelID
}

// NewManager 创建缓冲链管理器
func NewManager() *Manager {
	return &Manager{
		chains: make(map[types.ChannelID]*BufferChain),
	}
}

// Contains 判断指定 id 是否存在缓冲链
func (m *Manager) Contains(id types.ChannelID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.chains[id]
	return ok
}

// Chain 返回指定 id 的缓冲链
//
// 不创建任何状态；id 不存在时返回 ErrNoSuchChain。
func (m *Manager) Chain(id types.ChannelID) (*BufferChain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chains[id]
	if !ok {
		return nil, ErrNoSuchChain
	}
	return c, nil
}

// Allocate 获取或创建指定 id 的缓冲链（幂等）
//
// 首次收到引用未知 id 的块头、或本地提前预留 id 时调用。
func (m *Manager) Allocate(id types.ChannelID) *BufferChain {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chains[id]
	if !ok {
		c = NewBufferChain()
		m.chains[id] = c
	}
	return c
}

// AllocateNext 分配下一个通道 id 并立即创建其缓冲链
//
// id 严格单调递增，进程生命周期内不重复。不做跨 worker 协商：
// 组内所有 worker 必须以相同顺序调用才能对 id 含义达成一致。
func (m *Manager) AllocateNext() (types.ChannelID, *BufferChain) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	c, ok := m.chains[id]
	if !ok {
		c = NewBufferChain()
		m.chains[id] = c
	}
	return id, c
}
