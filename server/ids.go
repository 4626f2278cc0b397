package server

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDAllocator 分配实体 ID：进程级随机代号 + 单调计数，并对在线 ID 做冲突检查。
// 仅在房间 Tick 协程中使用，无需加锁。
type IDAllocator struct {
	generation string
	next       uint64
	live       map[EntityID]struct{}
}

func NewIDAllocator() *IDAllocator {
	gen := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return &IDAllocator{generation: gen, live: make(map[EntityID]struct{})}
}

// Allocate 返回一个与所有在线 ID 不冲突、且从未发出过的 ID
func (a *IDAllocator) Allocate() EntityID {
	for {
		a.next++
		id := EntityID(fmt.Sprintf("%s-%x", a.generation, a.next))
		if _, taken := a.live[id]; taken {
			continue
		}
		a.live[id] = struct{}{}
		return id
	}
}

// Release 连接关闭后释放；计数不回退，ID 不会再次发出
func (a *IDAllocator) Release(id EntityID) {
	delete(a.live, id)
}

// Live 在线 ID 数
func (a *IDAllocator) Live() int {
	return len(a.live)
}
