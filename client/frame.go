package client

import (
	"errors"
	"image"

	"cavernsync/protocol"
)

var ErrNoSelf = errors.New("own entity not in latest broadcast")

// CameraPose 俯视相机位姿：渲染坐标，以及对应的规范坐标
type CameraPose struct {
	X, Z           float64
	WorldX, WorldZ float64
	Height         float64
}

// Frame 交给渲染器的一帧
type Frame struct {
	SelfID      string
	Scale       float64
	PlaneWidth  float64
	PlaneHeight float64
	Camera      CameraPose
	Sprites     []Sprite

	Eroded          bool // 本帧是否撞掉了地形
	TextureUploaded bool
}

// SelfState 最近一次广播中自己的状态
func (c *Client) SelfState() (protocol.EntityState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.myID == "" {
		return protocol.EntityState{}, ErrNoSelf
	}
	st, ok := c.remote[c.myID]
	if !ok {
		return protocol.EntityState{}, ErrNoSelf
	}
	return st, nil
}

// Frame 每个显示帧调用一次：相机跟随广播中的自身位置，
// 只对本地实体做地形碰撞，贴图有修改时本帧最多上传一次。
func (c *Client) Frame() Frame {
	var view SceneView
	if self, err := c.SelfState(); err == nil {
		view = c.scene.Follow(self)
	} else {
		view = c.scene.View()
	}
	f := Frame{
		SelfID:      c.ID(),
		Scale:       view.Scale,
		PlaneWidth:  view.PlaneWidth,
		PlaneHeight: view.PlaneHeight,
		Camera: CameraPose{
			X:      view.CameraX,
			Z:      view.CameraZ,
			WorldX: view.CameraWX,
			WorldZ: view.CameraWZ,
			Height: view.Camera.Height,
		},
		Sprites: view.Sprites,
	}

	if c.opts.Raster != nil {
		if view.Following {
			f.Eroded = c.opts.Raster.ErodeAt(view.FocusX, view.FocusZ, view.Scale)
		}
		f.TextureUploaded = c.opts.Raster.Flush(func(img *image.NRGBA) {
			if c.opts.Renderer != nil {
				c.opts.Renderer.UploadTexture(img)
			}
		})
	}
	if c.opts.Renderer != nil {
		c.opts.Renderer.Render(f)
	}
	return f
}
