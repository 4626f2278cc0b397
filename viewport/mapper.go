package viewport

import (
	"math"
	"sync"
)

const (
	DefaultCameraHeight    = 20.0
	DefaultFOV             = 75.0 // 垂直视场角（度）
	DefaultMinVisibleWidth = 40.0
)

// Camera 俯视透视相机参数
type Camera struct {
	Height float64
	FOV    float64 // 度
	Aspect float64 // 宽/高
}

// VisibleSize 相机在地面上可见区域的渲染空间尺寸
func (c Camera) VisibleSize() (width, height float64) {
	height = 2 * math.Tan(c.FOV*math.Pi/180/2) * c.Height
	return height * c.Aspect, height
}

// FitScale 规范坐标 → 渲染坐标的缩放：背景铺满视口与最小可见宽度两者取大
func FitScale(worldW, worldH float64, cam Camera, minVisibleWidth float64) float64 {
	if worldW <= 0 || worldH <= 0 {
		return 0
	}
	reqW, reqH := cam.VisibleSize()
	fill := math.Max(reqW/worldW, reqH/worldH)
	minWidth := minVisibleWidth / worldW
	return math.Max(fill, minWidth)
}

// Mapper 持有世界尺寸与当前缩放；Resize 后所有换算使用同一个缩放值
type Mapper struct {
	mu              sync.RWMutex
	worldW, worldH  float64
	camera          Camera
	minVisibleWidth float64
	scale           float64
}

// NewMapper 创建映射器并按相机参数计算初始缩放
func NewMapper(worldW, worldH float64, cam Camera, minVisibleWidth float64) *Mapper {
	m := &Mapper{worldW: worldW, worldH: worldH, camera: cam, minVisibleWidth: minVisibleWidth}
	m.scale = FitScale(worldW, worldH, cam, minVisibleWidth)
	return m
}

// Resize 视口宽高比变化时重新计算缩放，返回新值
func (m *Mapper) Resize(aspect float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if aspect > 0 {
		m.camera.Aspect = aspect
	}
	m.scale = FitScale(m.worldW, m.worldH, m.camera, m.minVisibleWidth)
	return m.scale
}

// Scale 当前缩放
func (m *Mapper) Scale() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scale
}

// Camera 当前相机参数
func (m *Mapper) Camera() Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.camera
}

// WorldSize 规范世界尺寸
func (m *Mapper) WorldSize() (w, h float64) {
	return m.worldW, m.worldH
}

// PlaneSize 背景平面在渲染空间的尺寸
func (m *Mapper) PlaneSize() (w, h float64) {
	s := m.Scale()
	return m.worldW * s, m.worldH * s
}

// ToRender 规范坐标 → 渲染坐标
func (m *Mapper) ToRender(x, z float64) (float64, float64) {
	s := m.Scale()
	return x * s, z * s
}

// ToCanonical 渲染坐标 → 规范坐标；缩放为 0 时返回原点
func (m *Mapper) ToCanonical(rx, rz float64) (float64, float64) {
	s := m.Scale()
	if s == 0 {
		return 0, 0
	}
	return rx / s, rz / s
}

// CameraTarget 相机跟随目标点，但保证可见区域不超出背景平面
func (m *Mapper) CameraTarget(rx, rz float64) (float64, float64) {
	m.mu.RLock()
	cam, s := m.camera, m.scale
	m.mu.RUnlock()
	return ClampCamera(cam, m.worldW*s, m.worldH*s, rx, rz)
}

// ClampCamera 在给定平面尺寸下裁剪相机中心
func ClampCamera(cam Camera, planeW, planeH, rx, rz float64) (float64, float64) {
	viewW, viewH := cam.VisibleSize()
	return clampCenter(rx, viewW/2, planeW), clampCenter(rz, viewH/2, planeH)
}

// clampCenter 平面不大于视口时居中
func clampCenter(v, half, size float64) float64 {
	if size <= 2*half {
		return size / 2
	}
	return math.Max(half, math.Min(size-half, v))
}
