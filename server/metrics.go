package server

import (
	"sync/atomic"
)

// RoomMetrics 记录中继运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount         int64 // 广播 Tick 次数
	ReportsAccepted   int64 // 被接受的位置上报数
	Malformed         int64 // 格式错误被丢弃的消息数
	OldSeqIgnored     int64 // 因旧序列被忽略的上报数
	ChanFullDiscarded int64 // 因入站通道满被丢弃的上报数
	BroadcastSkipped  int64 // 因发送槽不可写而跳过的广播数
	SessionsOpened    int64
	SessionsClosed    int64
	TotalTickNs       int64 // Tick 累计耗时（纳秒）
}

func (m *RoomMetrics) IncAccepted()          { atomic.AddInt64(&m.ReportsAccepted, 1) }
func (m *RoomMetrics) IncMalformed()         { atomic.AddInt64(&m.Malformed, 1) }
func (m *RoomMetrics) IncOldSeqIgnored()     { atomic.AddInt64(&m.OldSeqIgnored, 1) }
func (m *RoomMetrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *RoomMetrics) IncBroadcastSkipped()  { atomic.AddInt64(&m.BroadcastSkipped, 1) }
func (m *RoomMetrics) IncOpened()            { atomic.AddInt64(&m.SessionsOpened, 1) }
func (m *RoomMetrics) IncClosed()            { atomic.AddInt64(&m.SessionsClosed, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":          tick,
		"reports_accepted":    atomic.LoadInt64(&m.ReportsAccepted),
		"malformed":           atomic.LoadInt64(&m.Malformed),
		"old_seq_ignored":     atomic.LoadInt64(&m.OldSeqIgnored),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"broadcast_skipped":   atomic.LoadInt64(&m.BroadcastSkipped),
		"sessions_opened":     atomic.LoadInt64(&m.SessionsOpened),
		"sessions_closed":     atomic.LoadInt64(&m.SessionsClosed),
		"avg_tick_ms":         avgMs,
	}
}
