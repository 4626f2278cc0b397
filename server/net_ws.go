package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cavernsync/logging"
	"cavernsync/protocol"
)

const (
	writeWait    = 5 * time.Second
	maxReportLen = 4 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// writePump 独立协程，负责从发送槽写出到 WS；写失败时关闭连接，由读泵走统一的离开流程
func writePump(ws *websocket.Conn, s *Session) {
	defer ws.Close()
	for msg := range s.Outbound() {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump 读取客户端上报并注入房间。格式错误的消息只记录并丢弃，连接保持。
// 空闲连接不设超时，直到传输层关闭或出错。
func readPump(ws *websocket.Conn, room *Room, id EntityID, log *zap.SugaredLogger) {
	defer ws.Close()
	// 读泵退出时（正常关闭或出错），通知房间在 Tick 协程中移除该实体
	defer room.RequestLeave(id)
	ws.SetReadLimit(maxReportLen)

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnw("read error", "id", id, "err", err)
			}
			return
		}
		rep, err := protocol.ParseReport(payload)
		if err != nil {
			room.Metrics().IncMalformed()
			log.Warnw("discard malformed report", "id", id, "err", err, "raw", truncate(payload, 128))
			continue
		}
		room.OnInput(Input{EntityID: id, Report: rep})
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// HandleWS WebSocket 接入：分配身份 → 写出 {"myId"} → 激活会话 → 启动读写泵。
// 身份消息在写泵启动之前同步写出，保证客户端先收到身份再收到任何广播。
func HandleWS(room *Room) http.HandlerFunc {
	log := logging.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnw("upgrade error", "remote", r.RemoteAddr, "err", err)
			return
		}

		s, err := room.Join(r.RemoteAddr, ws)
		if err != nil {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
				time.Now().Add(time.Second))
			_ = ws.Close()
			return
		}

		b, err := protocol.EncodeIdentity(string(s.ID))
		if err == nil {
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			err = ws.WriteMessage(websocket.TextMessage, b)
		}
		if err != nil {
			log.Warnw("send identity", "id", s.ID, "err", err)
			room.RequestLeave(s.ID)
			return
		}
		room.Activate(s.ID)

		go writePump(ws, s)
		go readPump(ws, room, s.ID, log)
	}
}
