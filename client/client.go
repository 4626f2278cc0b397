package client

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cavernsync/logging"
	"cavernsync/protocol"
	"cavernsync/raster"
	"cavernsync/sim"
	"cavernsync/viewport"
)

const writeWait = 5 * time.Second

// Renderer 渲染协作方：接收每帧快照；贴图有修改时先收到一次上传
type Renderer interface {
	UploadTexture(img *image.NRGBA)
	Render(f Frame)
}

// Options 客户端配置，零值字段使用默认值
type Options struct {
	Params          sim.Params
	TickHz          int
	Camera          viewport.Camera
	MinVisibleWidth float64
	ShipTexels      float64
	Raster          *raster.Raster // 贴图加载失败时为 nil，跳过碰撞
	Renderer        Renderer
	Logger          *zap.SugaredLogger
	Dialer          *websocket.Dialer
}

func (o *Options) applyDefaults() {
	if o.Params == (sim.Params{}) {
		o.Params = sim.DefaultParams(protocol.DefaultWorldWidth, protocol.DefaultWorldHeight)
	}
	if o.TickHz <= 0 {
		o.TickHz = protocol.ClientTickHz
	}
	if o.Camera == (viewport.Camera{}) {
		o.Camera = viewport.Camera{Height: viewport.DefaultCameraHeight, FOV: viewport.DefaultFOV, Aspect: 16.0 / 9}
	}
	if o.MinVisibleWidth <= 0 {
		o.MinVisibleWidth = viewport.DefaultMinVisibleWidth
	}
	if o.Logger == nil {
		o.Logger = logging.Named("client")
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// Client 同步客户端：固定频率本地模拟并上报，同时接收广播维护远端镜像。
// 自己的实体在渲染与相机上以最近一次广播为准，本地预测只用于决定下一次上报。
type Client struct {
	conn   *websocket.Conn
	opts   Options
	log    *zap.SugaredLogger
	mapper *viewport.Mapper
	scene  *Scene

	mu         sync.Mutex
	input      sim.Input
	local      sim.State
	myID       string
	remote     map[string]protocol.EntityState
	broadcasts int
	seq        uint64
}

// Dial 连接中继
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	opts.applyDefaults()
	conn, _, err := opts.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newClient(conn, opts), nil
}

func newClient(conn *websocket.Conn, opts Options) *Client {
	opts.applyDefaults()
	p := opts.Params
	mapper := viewport.NewMapper(p.WorldWidth, p.WorldHeight, opts.Camera, opts.MinVisibleWidth)
	return &Client{
		conn:   conn,
		opts:   opts,
		log:    opts.Logger,
		mapper: mapper,
		scene:  NewScene(mapper, opts.ShipTexels),
		local:  sim.Spawn(p.WorldWidth, p.WorldHeight),
		remote: make(map[string]protocol.EntityState),
	}
}

// Run 驱动本地 Tick 与入站读取，直到 ctx 取消或连接关闭。不会自动重连。
func (c *Client) Run(ctx context.Context) error {
	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop() }()

	ticker := time.NewTicker(time.Second / time.Duration(c.opts.TickHz))
	defer ticker.Stop()
	defer c.reset()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			<-readErr
			return ctx.Err()
		case err := <-readErr:
			_ = c.conn.Close()
			return err
		case <-ticker.C:
			if err := c.tick(); err != nil {
				c.log.Warnw("send report", "err", err)
				_ = c.conn.Close()
				<-readErr
				return err
			}
		}
	}
}

// Close 发送关闭帧并断开
func (c *Client) Close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// tick 读取当前按键 → 物理积分 → 上报一次
func (c *Client) tick() error {
	p := c.opts.Params
	if p.WorldWidth <= 0 || p.WorldHeight <= 0 {
		return nil
	}
	c.mu.Lock()
	c.local = sim.Step(c.local, c.input, p)
	c.seq++
	x, z, angle := c.local.Pose()
	rep := protocol.Report{X: x, Z: z, Angle: angle, Seq: c.seq}
	c.mu.Unlock()

	b, err := protocol.EncodeReport(rep)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) readLoop() error {
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		msg, err := protocol.DecodeServerMessage(b)
		if err != nil {
			c.log.Warnw("discard malformed message", "err", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.IdentityAssignment:
		c.mu.Lock()
		if c.myID == "" {
			c.myID = m.ID
		}
		c.mu.Unlock()
		c.log.Infow("identity assigned", "id", m.ID)
	case protocol.StateBroadcast:
		c.mu.Lock()
		c.remote = m.Entities
		c.broadcasts++
		self := c.myID
		c.mu.Unlock()
		added, removed := c.scene.Reconcile(m.Entities, self)
		for _, id := range added {
			c.log.Debugw("entity joined", "id", id)
		}
		for _, id := range removed {
			c.log.Debugw("entity left", "id", id)
		}
	}
}

// reset 连接断开：清空精灵、镜像与自身 ID
func (c *Client) reset() {
	c.mu.Lock()
	c.remote = make(map[string]protocol.EntityState)
	c.myID = ""
	c.mu.Unlock()
	c.scene.Clear()
}

// SetInput 替换当前按键状态
func (c *Client) SetInput(in sim.Input) {
	c.mu.Lock()
	c.input = in
	c.mu.Unlock()
}

// Resize 视口宽高比变化
func (c *Client) Resize(aspect float64) float64 {
	return c.scene.Resize(aspect)
}

// ID 分配到的实体 ID，未分配时为空
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.myID
}

// Remote 最近一次广播的副本
func (c *Client) Remote() map[string]protocol.EntityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]protocol.EntityState, len(c.remote))
	for id, st := range c.remote {
		m[id] = st
	}
	return m
}

// Broadcasts 已收到的广播数
func (c *Client) Broadcasts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcasts
}

// LocalState 本地预测状态
func (c *Client) LocalState() sim.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// Scene 渲染场景
func (c *Client) Scene() *Scene { return c.scene }
