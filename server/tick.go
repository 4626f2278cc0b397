package server

import (
	"context"
	"time"
)

// Run 房间主循环（单协程）：串行处理加入/上报/离开命令，并按固定周期广播。
// 某条上报若在广播之后才被取出，就进入下一次广播。
func (r *Room) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval())
	defer ticker.Stop()
	defer close(r.done)
	defer r.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.joinChan:
			r.handleJoin(req)
		case id := <-r.activateChan:
			r.handleActivate(id)
		case in := <-r.inputChan:
			r.handleInput(in)
		case id := <-r.leaveChan:
			r.handleLeave(id)
		case req := <-r.snapshotChan:
			req.reply <- r.snapshot()
		case req := <-r.intervalChan:
			old := r.Interval()
			r.interval.Store(int64(req.interval))
			ticker.Reset(req.interval)
			close(req.applied)
			r.log.Infow("broadcast interval updated", "from", old, "to", req.interval)
		case <-ticker.C:
			start := time.Now()
			r.tickSeq++
			r.Broadcast()
			r.metrics.AddTick(time.Since(start).Nanoseconds())
		}
	}
}

// StartTicker 启动房间主循环（只启动一次）
func (r *Room) StartTicker(ctx context.Context) {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	go r.Run(ctx)
}

// Done 主循环退出后关闭
func (r *Room) Done() <-chan struct{} {
	return r.done
}
