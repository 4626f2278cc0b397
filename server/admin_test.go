package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"cavernsync/protocol"
)

func TestHandleEntitiesDumpsTable(t *testing.T) {
	r := startRoom(t)
	s, _ := join(t, r, false)

	rec := httptest.NewRecorder()
	HandleEntities(r)(rec, httptest.NewRequest(http.MethodGet, "/admin/entities", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]protocol.EntityState
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[string(s.ID)] != spawn {
		t.Fatalf("entities = %+v", got)
	}
}

func TestHandleMetricsReportsCounters(t *testing.T) {
	r := startRoom(t)
	join(t, r, true)

	rec := httptest.NewRecorder()
	HandleMetrics(r)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var payload struct {
		BroadcastMs int64          `json:"broadcast_ms"`
		Entities    int            `json:"entities"`
		Metrics     map[string]any `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.BroadcastMs != 10 || payload.Entities != 1 {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Metrics["sessions_opened"].(float64) != 1 {
		t.Fatalf("sessions_opened = %v", payload.Metrics["sessions_opened"])
	}
}

func TestHandleConfigUpdatesBroadcastInterval(t *testing.T) {
	r := startRoom(t)
	h := HandleConfig(r)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{"broadcast_ms":40}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("post status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := r.Interval(); got != 40*time.Millisecond {
		t.Fatalf("interval = %v, want 40ms", got)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
	var cur struct {
		BroadcastMs int64 `json:"broadcast_ms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cur); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cur.BroadcastMs != 40 {
		t.Fatalf("broadcast_ms = %d, want 40", cur.BroadcastMs)
	}

	// 广播仍在新周期下进行
	s, _ := join(t, r, true)
	waitBroadcast(t, s, func(m map[string]protocol.EntityState) bool { return len(m) == 1 })
}

func TestHandleConfigRejects(t *testing.T) {
	r := startRoom(t)
	h := HandleConfig(r)
	cases := map[string]struct {
		method string
		body   string
		status int
	}{
		"bad json":  {http.MethodPost, `{`, http.StatusBadRequest},
		"zero":      {http.MethodPost, `{"broadcast_ms":0}`, http.StatusBadRequest},
		"too small": {http.MethodPost, `{"broadcast_ms":1}`, http.StatusBadRequest},
		"method":    {http.MethodDelete, ``, http.StatusMethodNotAllowed},
	}
	for name, tc := range cases {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(tc.method, "/admin/config", strings.NewReader(tc.body)))
		if rec.Code != tc.status {
			t.Fatalf("%s: status = %d, want %d", name, rec.Code, tc.status)
		}
	}
	if got := r.Interval(); got != 10*time.Millisecond {
		t.Fatalf("interval changed to %v by rejected requests", got)
	}
}

func TestSetIntervalAfterStop(t *testing.T) {
	r := NewRoom(Options{Interval: 10 * time.Millisecond, Logger: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	cancel()
	<-r.Done()
	if err := r.SetInterval(20 * time.Millisecond); err != ErrRoomClosed {
		t.Fatalf("err = %v, want ErrRoomClosed", err)
	}
}
