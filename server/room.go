package server

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cavernsync/logging"
	"cavernsync/protocol"
)

var ErrRoomClosed = errors.New("room closed")

// MinBroadcastInterval 运行时可设置的最短广播周期
const MinBroadcastInterval = 5 * time.Millisecond

// Options 房间配置
type Options struct {
	Interval time.Duration        // 广播周期
	Spawn    protocol.EntityState // 新连接的默认出生状态
	Journal  *Journal             // 可选：广播记录
	Logger   *zap.SugaredLogger
}

// Room 中继世界：共享状态表维护在内存，所有连接回调与广播都在单个 Tick 协程中串行执行，
// 因此状态表无需加锁。其他协程只能通过通道投递命令。
type Room struct {
	entities map[EntityID]*Entity
	ids      *IDAllocator

	inputChan    chan Input
	joinChan     chan joinRequest
	activateChan chan EntityID
	leaveChan    chan EntityID
	snapshotChan chan snapshotRequest
	intervalChan chan intervalRequest

	interval atomic.Int64 // 广播周期（ns），只在 Tick 协程中修改
	spawn    protocol.EntityState
	journal  *Journal
	log      *zap.SugaredLogger
	metrics  *RoomMetrics
	tickSeq  uint64

	done          chan struct{}
	tickerStarted bool
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(opts Options) *Room {
	if opts.Interval <= 0 {
		opts.Interval = protocol.BroadcastInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Named("room")
	}
	r := &Room{
		entities:     make(map[EntityID]*Entity),
		ids:          NewIDAllocator(),
		inputChan:    make(chan Input, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		joinChan:     make(chan joinRequest, 16),
		activateChan: make(chan EntityID, 64),
		leaveChan:    make(chan EntityID, 64),
		snapshotChan: make(chan snapshotRequest),
		intervalChan: make(chan intervalRequest),
		spawn:        opts.Spawn,
		journal:      opts.Journal,
		log:          opts.Logger,
		metrics:      &RoomMetrics{},
		done:         make(chan struct{}),
	}
	r.interval.Store(int64(opts.Interval))
	return r
}

// Metrics 运行指标
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Interval 广播周期
func (r *Room) Interval() time.Duration { return time.Duration(r.interval.Load()) }

// SetInterval 运行时调整广播周期，从下一次广播起生效
func (r *Room) SetInterval(d time.Duration) error {
	if d < MinBroadcastInterval {
		return fmt.Errorf("broadcast interval %v below %v", d, MinBroadcastInterval)
	}
	applied := make(chan struct{})
	select {
	case r.intervalChan <- intervalRequest{interval: d, applied: applied}:
	case <-r.done:
		return ErrRoomClosed
	}
	select {
	case <-applied:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Join 为新连接分配 ID 并插入默认出生状态，返回处于 Open 状态的会话
func (r *Room) Join(remote string, closer io.Closer) (*Session, error) {
	reply := make(chan *Session, 1)
	select {
	case r.joinChan <- joinRequest{remote: remote, closer: closer, reply: reply}:
	case <-r.done:
		return nil, ErrRoomClosed
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return nil, ErrRoomClosed
	}
}

// Activate 身份分配已写出，会话开始接收广播
func (r *Room) Activate(id EntityID) {
	select {
	case r.activateChan <- id:
	case <-r.done:
	}
}

// OnInput 入站上报（不阻塞读协程）：拥塞时丢弃，下一次上报会覆盖它
func (r *Room) OnInput(in Input) {
	select {
	case r.inputChan <- in:
	default:
		r.metrics.IncChanFullDiscarded()
	}
}

// RequestLeave 请求在 Tick 协程中移除实体，避免并发改动状态表
func (r *Room) RequestLeave(id EntityID) {
	select {
	case r.leaveChan <- id:
	case <-r.done:
	}
}

// Snapshot 返回共享状态表的副本
func (r *Room) Snapshot() map[EntityID]protocol.EntityState {
	reply := make(chan map[EntityID]protocol.EntityState, 1)
	select {
	case r.snapshotChan <- snapshotRequest{reply: reply}:
	case <-r.done:
		return nil
	}
	select {
	case m := <-reply:
		return m
	case <-r.done:
		return nil
	}
}

func (r *Room) handleJoin(req joinRequest) {
	id := r.ids.Allocate()
	s := newSession(id, req.remote, req.closer)
	r.entities[id] = &Entity{ID: id, State: r.spawn, Session: s}
	r.metrics.IncOpened()
	r.log.Infow("session opened", "id", id, "remote", req.remote,
		"spawn_x", r.spawn.X, "spawn_z", r.spawn.Z, "entities", len(r.entities))
	req.reply <- s
}

func (r *Room) handleActivate(id EntityID) {
	e, ok := r.entities[id]
	if !ok || e.Session.State != SessionOpen {
		return
	}
	e.Session.State = SessionActive
}

// handleInput 只修改发送方自己的实体：身份来自连接，不来自消息内容
func (r *Room) handleInput(in Input) {
	e, ok := r.entities[in.EntityID]
	if !ok {
		r.log.Debugw("report for unknown entity", "id", in.EntityID)
		return
	}
	if seq := in.Report.Seq; seq != 0 {
		if seq <= e.Session.lastSeq {
			r.metrics.IncOldSeqIgnored()
			return
		}
		e.Session.lastSeq = seq
	}
	e.State = in.Report.State()
	r.metrics.IncAccepted()
}

func (r *Room) handleLeave(id EntityID) {
	e, ok := r.entities[id]
	if !ok {
		return
	}
	delete(r.entities, id)
	r.ids.Release(id)
	e.Session.close()
	r.metrics.IncClosed()
	r.log.Infow("session closed", "id", id, "remote", e.Session.Remote, "entities", len(r.entities))
}

func (r *Room) snapshot() map[EntityID]protocol.EntityState {
	m := make(map[EntityID]protocol.EntityState, len(r.entities))
	for id, e := range r.entities {
		m[id] = e.State
	}
	return m
}

// Broadcast 将整张状态表编码一次，投递给所有 Active 且发送槽可写的会话；
// 不可写的会话直接跳过，不排队也不报错
func (r *Room) Broadcast() {
	if len(r.entities) == 0 {
		return
	}
	table := make(map[string]protocol.EntityState, len(r.entities))
	for id, e := range r.entities {
		table[string(id)] = e.State
	}
	b, err := protocol.EncodeBroadcast(table)
	if err != nil {
		r.log.Errorw("encode broadcast", "err", err)
		return
	}
	if r.journal != nil {
		r.journal.Record(r.tickSeq, b)
	}
	for _, e := range r.entities {
		if e.Session.State != SessionActive {
			continue
		}
		if !e.Session.offer(b) {
			r.metrics.IncBroadcastSkipped()
		}
	}
}

// closeAll 房间停止时关闭所有会话
func (r *Room) closeAll() {
	for id := range r.entities {
		r.handleLeave(id)
	}
}
