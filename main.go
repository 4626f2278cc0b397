package main

import (
	"context"
	"crypto/tls"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matryer/way"

	"cavernsync/config"
	"cavernsync/logging"
	"cavernsync/server"
)

// cavernsync 中继入口：启动 HTTP(S) + WebSocket 服务，单协程维护共享状态表并定时广播
func main() {
	var (
		cfgPath string
		addr    string
	)
	flag.StringVar(&cfgPath, "config", "relay.yaml", "path to relay config (yaml)")
	flag.StringVar(&addr, "addr", "", "override listen address, e.g. :8081")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	if err := logging.InitLogger(logging.Options{File: cfg.Log.File, Level: cfg.Log.Level, Console: cfg.Log.Console}); err != nil {
		panic(err)
	}
	defer logging.SyncLogger()
	log := logging.Named("main")

	var journal *server.Journal
	if cfg.JournalDir != "" {
		journal, err = server.OpenJournal(cfg.JournalDir, logging.Named("journal"))
		if err != nil {
			log.Warnf("journal disabled: %v", err)
			journal = nil
		}
	}

	room := server.NewRoom(server.Options{
		Interval: cfg.BroadcastInterval(),
		Spawn:    cfg.Spawn(),
		Journal:  journal,
	})
	ctx, stop := context.WithCancel(context.Background())
	room.StartTicker(ctx)

	router := way.NewRouter()
	router.HandleFunc("GET", "/ws", server.HandleWS(room))
	router.HandleFunc("GET", "/metrics", server.HandleMetrics(room))
	router.HandleFunc("GET", "/admin/entities", server.HandleEntities(room))
	router.HandleFunc("GET", "/admin/config", server.HandleConfig(room))
	router.HandleFunc("POST", "/admin/config", server.HandleConfig(room))
	router.HandleFunc("GET", "/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	useTLS := loadTLS(srv, cfg.TLS)

	go func() {
		scheme := "ws"
		if useTLS {
			scheme = "wss"
		}
		log.Infof("cavernsync relay listening on %s (%s://localhost%s/ws), broadcast every %v",
			cfg.Addr, scheme, cfg.Addr, cfg.BroadcastInterval())
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	stop()
	<-room.Done()
	if journal != nil {
		if err := journal.Close(); err != nil {
			log.Warnf("journal close: %v", err)
		}
	}
}

// loadTLS 证书存在且可读时启用 HTTPS，否则告警并退回 HTTP
func loadTLS(srv *http.Server, c config.TLSConfig) bool {
	log := logging.Named("tls")
	if c.Cert == "" || c.Key == "" {
		log.Warn("no certificate configured, using HTTP")
		return false
	}
	if !fileExists(c.Cert) || !fileExists(c.Key) {
		log.Warnf("no certificates found at %s / %s, using HTTP", c.Cert, c.Key)
		return false
	}
	pair, err := tls.LoadX509KeyPair(c.Cert, c.Key)
	if err != nil {
		log.Errorf("reading certificates: %v", err)
		log.Warn("falling back to HTTP due to certificate error")
		return false
	}
	srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{pair}}
	log.Info("HTTPS enabled using local certificates")
	return true
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
