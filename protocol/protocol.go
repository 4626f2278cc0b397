package protocol

import "time"

const (
	// BroadcastInterval 服务端全量状态广播周期（20 Hz）
	BroadcastInterval = 50 * time.Millisecond
	// ClientTickHz 客户端本地模拟频率
	ClientTickHz = 60

	// DefaultWorldWidth/Height 背景贴图未知时使用的世界尺寸（像素）
	DefaultWorldWidth  = 1024
	DefaultWorldHeight = 1024
)

// EntityState 单个实体在规范世界坐标下的状态，广播与上报共用此形状
type EntityState struct {
	X     float64 `json:"x"`
	Z     float64 `json:"z"`
	Angle float64 `json:"angle"`
}

// Report 客户端每个 Tick 上报的位置；Seq 可选且从 1 开始，0 表示未携带（线上不接受 0 或 null）
type Report struct {
	X     float64 `json:"x"`
	Z     float64 `json:"z"`
	Angle float64 `json:"angle"`
	Seq   uint64  `json:"seq,omitempty"`
}

// State 报告中的位置三元组
func (r Report) State() EntityState {
	return EntityState{X: r.X, Z: r.Z, Angle: r.Angle}
}

// Message 服务端→客户端消息：IdentityAssignment 或 StateBroadcast
type Message interface {
	isMessage()
}

// IdentityAssignment 连接建立后立即下发一次的身份分配
type IdentityAssignment struct {
	ID string `json:"myId"`
}

// StateBroadcast 全量共享状态表
type StateBroadcast struct {
	Entities map[string]EntityState
}

func (IdentityAssignment) isMessage() {}
func (StateBroadcast) isMessage()     {}
