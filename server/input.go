package server

import (
	"io"
	"time"

	"cavernsync/protocol"
)

// 以下为投递到房间 Tick 协程的命令，所有状态修改都在该协程内完成

// Input 某连接的一次位置上报
type Input struct {
	EntityID EntityID
	Report   protocol.Report
}

type joinRequest struct {
	remote string
	closer io.Closer
	reply  chan *Session
}

type snapshotRequest struct {
	reply chan map[EntityID]protocol.EntityState
}

// intervalRequest 运行时修改广播周期，生效后关闭 applied
type intervalRequest struct {
	interval time.Duration
	applied  chan struct{}
}
