package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cavernsync/protocol"
)

func startRelay(t *testing.T) (*Room, string) {
	t.Helper()
	r := startRoom(t)
	srv := httptest.NewServer(HandleWS(r))
	t.Cleanup(srv.Close)
	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := protocol.DecodeServerMessage(b)
	if err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return m
}

func readIdentity(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	m := readMessage(t, conn)
	id, ok := m.(protocol.IdentityAssignment)
	if !ok {
		t.Fatalf("first message = %#v, want identity assignment", m)
	}
	return id.ID
}

func waitState(t *testing.T, conn *websocket.Conn, pred func(map[string]protocol.EntityState) bool) map[string]protocol.EntityState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sb, ok := readMessage(t, conn).(protocol.StateBroadcast); ok && pred(sb.Entities) {
			return sb.Entities
		}
	}
	t.Fatalf("timed out waiting for matching broadcast")
	return nil
}

func TestWSIdentityBeforeBroadcast(t *testing.T) {
	_, url := startRelay(t)
	conn := dial(t, url)

	id := readIdentity(t, conn)
	if id == "" {
		t.Fatalf("empty identity")
	}
	// 未上报任何位置：下一次广播里是出生点
	m := readMessage(t, conn)
	sb, ok := m.(protocol.StateBroadcast)
	if !ok {
		t.Fatalf("second message = %#v, want broadcast", m)
	}
	if got := sb.Entities[id]; got != spawn {
		t.Fatalf("own entity = %+v, want spawn %+v", got, spawn)
	}
}

func TestWSReportReachesOtherClient(t *testing.T) {
	_, url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)
	idA := readIdentity(t, a)
	readIdentity(t, b)

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"x":100,"z":50,"angle":1.57}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := protocol.EntityState{X: 100, Z: 50, Angle: 1.57}
	waitState(t, b, func(m map[string]protocol.EntityState) bool {
		return m[idA] == want
	})
}

func TestWSMalformedReportKeepsConnection(t *testing.T) {
	r, url := startRelay(t)
	a := dial(t, url)
	idA := readIdentity(t, a)

	for _, bad := range []string{`garbage`, `{"x":1}`, `{"x":1,"z":2,"angle":"3"}`} {
		if err := a.WriteMessage(websocket.TextMessage, []byte(bad)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := a.WriteJSON(protocol.Report{X: 7, Z: 8, Angle: 9}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitState(t, a, func(m map[string]protocol.EntityState) bool {
		return m[idA] == protocol.EntityState{X: 7, Z: 8, Angle: 9}
	})
	if got := r.Metrics().Snapshot()["malformed"].(int64); got != 3 {
		t.Fatalf("malformed = %d, want 3", got)
	}
}

func TestWSCloseRemovesEntity(t *testing.T) {
	r, url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)
	idA := readIdentity(t, a)
	readIdentity(t, b)

	waitState(t, b, func(m map[string]protocol.EntityState) bool {
		_, ok := m[idA]
		return ok
	})
	if n := len(r.Snapshot()); n != 2 {
		t.Fatalf("table size = %d, want 2", n)
	}

	_ = a.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = a.Close()

	waitState(t, b, func(m map[string]protocol.EntityState) bool {
		_, ok := m[idA]
		return !ok
	})
	if n := len(r.Snapshot()); n != 1 {
		t.Fatalf("table size = %d, want 1", n)
	}
}
