package server

import (
	"encoding/json"
	"net/http"
	"time"

	"cavernsync/logging"
)

// HandleMetrics 输出中继运行指标
// GET /metrics
func HandleMetrics(room *Room) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"broadcast_ms": room.Interval().Milliseconds(),
			"entities":     len(room.Snapshot()),
			"metrics":      room.Metrics().Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// HandleEntities 输出当前共享状态表（调试用）
// GET /admin/entities
func HandleEntities(room *Room) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := room.Snapshot()
		if snap == nil {
			http.Error(w, "relay stopped", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

// HandleConfig 读取与热更新中继配置
// GET /admin/config  返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段，如 {"broadcast_ms": 100}
func HandleConfig(room *Room) http.HandlerFunc {
	log := logging.Named("admin")
	type cfg struct {
		BroadcastMs *int64 `json:"broadcast_ms,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			ms := room.Interval().Milliseconds()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(cfg{BroadcastMs: &ms})
		case http.MethodPost:
			var body cfg
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if body.BroadcastMs != nil {
				d := time.Duration(*body.BroadcastMs) * time.Millisecond
				if err := room.SetInterval(d); err != nil {
					status := http.StatusBadRequest
					if err == ErrRoomClosed {
						status = http.StatusServiceUnavailable
					}
					http.Error(w, err.Error(), status)
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
			log.Infow("config updated", "broadcast_ms", room.Interval().Milliseconds(), "remote", r.RemoteAddr)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
