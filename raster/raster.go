package raster

import (
	"image"
	"image/draw"
	"math"
	"sync"
)

const (
	// DefaultRadius 碰撞半径（贴图像素），扫描窗口为 [c-r, c+r)
	DefaultRadius = 10
	// DefaultWallThreshold 任一颜色通道超过该值即视为可破坏的墙体
	DefaultWallThreshold = 10
)

// Raster 可破坏地形位图。alpha 只减不增：被撞掉的墙体永不恢复。
// 每个客户端私有，不在客户端间同步。
type Raster struct {
	mu        sync.Mutex
	img       *image.NRGBA
	radius    int
	threshold uint8
	dirty     bool
}

// New 以图片内容创建位图（拷贝为 NRGBA，不修改原图）
func New(src image.Image) *Raster {
	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if n, ok := src.(*image.NRGBA); ok {
		// 直接拷贝，避免预乘往返损失半透明像素的颜色
		for y := 0; y < b.Dy(); y++ {
			off := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(img.Pix[y*img.Stride:(y+1)*img.Stride], n.Pix[off:off+b.Dx()*4])
		}
	} else {
		draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	}
	return &Raster{img: img, radius: DefaultRadius, threshold: DefaultWallThreshold}
}

// SetRadius 修改碰撞半径
func (r *Raster) SetRadius(px int) {
	r.mu.Lock()
	r.radius = px
	r.mu.Unlock()
}

// SetThreshold 修改墙体颜色阈值
func (r *Raster) SetThreshold(t uint8) {
	r.mu.Lock()
	r.threshold = t
	r.mu.Unlock()
}

// Size 位图尺寸，等于规范世界尺寸
func (r *Raster) Size() (w, h int) {
	b := r.img.Bounds()
	return b.Dx(), b.Dy()
}

// ErodeAt 将渲染坐标按缩放的逆换算到像素坐标后擦除周围的墙体
func (r *Raster) ErodeAt(renderX, renderZ, scale float64) bool {
	if scale <= 0 {
		return false
	}
	px := int(math.Round(renderX / scale))
	pz := int(math.Round(renderZ / scale))
	return r.Erode(px, pz)
}

// Erode 擦除以 (px, pz) 为中心的方形窗口内的墙体像素，窗口越界时静默裁剪。
// 返回本次是否有像素被修改。
func (r *Raster) Erode(px, pz int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, h := r.img.Rect.Dx(), r.img.Rect.Dy()
	x0, x1 := max(0, px-r.radius), min(w, px+r.radius)
	y0, y1 := max(0, pz-r.radius), min(h, pz+r.radius)

	modified := false
	for y := y0; y < y1; y++ {
		row := y * r.img.Stride
		for x := x0; x < x1; x++ {
			i := row + x*4
			p := r.img.Pix[i : i+4 : i+4]
			if p[3] == 0 {
				continue
			}
			if p[0] > r.threshold || p[1] > r.threshold || p[2] > r.threshold {
				p[3] = 0
				modified = true
			}
		}
	}
	if modified {
		r.dirty = true
	}
	return modified
}

// Dirty 是否有未上传的修改
func (r *Raster) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// Flush 每帧调用一次：有修改时把像素缓冲交给 upload 并清除脏标记。
// upload 在锁内执行，不得保留 img 引用。
func (r *Raster) Flush(upload func(img *image.NRGBA)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return false
	}
	if upload != nil {
		upload(r.img)
	}
	r.dirty = false
	return true
}

// AlphaAt 读取像素 alpha，越界返回 0
func (r *Raster) AlphaAt(x, y int) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !(image.Point{X: x, Y: y}.In(r.img.Rect)) {
		return 0
	}
	return r.img.Pix[r.img.PixOffset(x, y)+3]
}

// Snapshot 返回位图副本
func (r *Raster) Snapshot() *image.NRGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := image.NewNRGBA(r.img.Rect)
	copy(cp.Pix, r.img.Pix)
	return cp
}
