package main

import (
	"context"
	"crypto/tls"
	"flag"
	"image"
	"image/png"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cavernsync/client"
	"cavernsync/logging"
	"cavernsync/protocol"
	"cavernsync/raster"
	"cavernsync/sim"
)

// drone 无界面客户端：按脚本驾驶一艘飞船，用于联调中继与压测
func main() {
	var (
		url      = flag.String("url", "ws://localhost:8081/ws", "relay websocket url")
		texture  = flag.String("texture", "", "background texture (png/jpeg/gif/bmp/webp); empty disables terrain")
		aspect   = flag.Float64("aspect", 16.0/9, "viewport aspect ratio")
		duration = flag.Duration("duration", 0, "stop after this long (0 = until interrupted)")
		insecure = flag.Bool("insecure", false, "skip TLS verification for wss:// with local certificates")
		level    = flag.String("log-level", "info", "log level")
		radius   = flag.Int("radius", raster.DefaultRadius, "terrain collision radius in texture pixels")
		wall     = flag.Int("wall-threshold", raster.DefaultWallThreshold, "channel value above which a pixel counts as wall")
		dump     = flag.String("dump", "", "write the eroded terrain to this PNG on exit")
	)
	flag.Parse()

	if err := logging.InitLogger(logging.Options{Level: *level, Console: true}); err != nil {
		panic(err)
	}
	defer logging.SyncLogger()
	log := logging.Named("drone")

	worldW, worldH := float64(protocol.DefaultWorldWidth), float64(protocol.DefaultWorldHeight)
	var terrain *raster.Raster
	if *texture != "" {
		r, err := raster.Load(*texture)
		if err != nil {
			log.Warnw("terrain disabled", "err", err)
		} else {
			terrain = r
			terrain.SetRadius(*radius)
			terrain.SetThreshold(uint8(min(max(*wall, 0), 255)))
			w, h := r.Size()
			worldW, worldH = float64(w), float64(h)
		}
	}

	dialer := *websocket.DefaultDialer
	if *insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	c, err := client.Dial(ctx, *url, client.Options{
		Params:   sim.DefaultParams(worldW, worldH),
		Raster:   terrain,
		Renderer: &logRenderer{log: logging.Named("render")},
		Logger:   logging.Named("client"),
		Dialer:   &dialer,
	})
	if err != nil {
		log.Fatalw("connect", "err", err)
	}
	c.Resize(*aspect)
	log.Infow("connected", "url", *url, "world", []float64{worldW, worldH})

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	frames := time.NewTicker(time.Second / protocol.ClientTickHz)
	defer frames.Stop()
	start := time.Now()
	for {
		select {
		case err := <-runErr:
			if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
				log.Warnw("disconnected", "err", err)
			}
			log.Infow("stopped", "broadcasts", c.Broadcasts())
			if terrain != nil && *dump != "" {
				if err := dumpTerrain(*dump, terrain); err != nil {
					log.Warnw("dump terrain", "path", *dump, "err", err)
				}
			}
			return
		case now := <-frames.C:
			c.SetInput(script(now.Sub(start)))
			c.Frame()
		}
	}
}

// dumpTerrain 保存本机侵蚀后的地形，用于对照不同客户端各自的结果
func dumpTerrain(path string, r *raster.Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, r.Snapshot()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// script 固定航线：直飞两秒，左转一秒，直飞两秒，右转一秒，循环
func script(elapsed time.Duration) sim.Input {
	switch t := elapsed % (6 * time.Second); {
	case t < 2*time.Second:
		return sim.Input{Forward: true}
	case t < 3*time.Second:
		return sim.Input{Forward: true, Left: true}
	case t < 5*time.Second:
		return sim.Input{Forward: true}
	default:
		return sim.Input{Right: true}
	}
}

// logRenderer 不绘制，只按秒汇总
type logRenderer struct {
	log     *zap.SugaredLogger
	frames  int
	uploads int
	last    time.Time
}

func (r *logRenderer) UploadTexture(*image.NRGBA) { r.uploads++ }

func (r *logRenderer) Render(f client.Frame) {
	r.frames++
	if time.Since(r.last) < time.Second {
		return
	}
	r.last = time.Now()
	r.log.Infow("frame",
		"self", f.SelfID,
		"entities", len(f.Sprites),
		"camera", []float64{f.Camera.X, f.Camera.Z},
		"scale", f.Scale,
		"frames", r.frames,
		"uploads", r.uploads,
	)
}
