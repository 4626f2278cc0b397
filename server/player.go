package server

import (
	"fmt"
	"io"

	"cavernsync/protocol"
)

// EntityID 连接建立时分配的实体唯一标识，进程内永不复用
type EntityID string

// SessionState 连接槽位状态：Open → Active → Closed
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionActive
	SessionClosed
)

func (s SessionState) Name() string {
	switch s {
	case SessionOpen:
		return "OPEN"
	case SessionActive:
		return "ACTIVE"
	case SessionClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("n/a:%d", int(s))
	}
}

// Session 中继端每个连接的槽位。只在房间 Tick 协程中读写。
type Session struct {
	ID     EntityID
	Remote string
	State  SessionState

	send    chan []byte // 容量为 1：上一条广播未写出时跳过本次
	closer  io.Closer
	lastSeq uint64
}

func newSession(id EntityID, remote string, closer io.Closer) *Session {
	return &Session{
		ID:     id,
		Remote: remote,
		State:  SessionOpen,
		send:   make(chan []byte, 1),
		closer: closer,
	}
}

// Outbound 写协程读取的发送队列
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// offer 非阻塞投递；通道不可写时返回 false，不排队
func (s *Session) offer(b []byte) bool {
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

// close 关闭发送队列与底层连接
func (s *Session) close() {
	if s.State == SessionClosed {
		return
	}
	s.State = SessionClosed
	close(s.send)
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

// Entity 共享状态表中的实体（服务端保存的最新上报）
type Entity struct {
	ID      EntityID
	State   protocol.EntityState
	Session *Session
}
