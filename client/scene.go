package client

import (
	"math"
	"sort"
	"sync"

	"cavernsync/protocol"
	"cavernsync/viewport"
)

// DefaultShipTexels 飞船边长（贴图像素），渲染尺寸 = 边长 × 当前缩放
const DefaultShipTexels = 60.0

// Sprite 一个实体的渲染表示（渲染坐标）
type Sprite struct {
	ID       string
	X, Z     float64
	Rotation float64
	Scale    float64
	Self     bool
}

// Scene 背景平面与所有实体的渲染表示。缩放变化时平面与全部精灵在同一把锁内一起更新，
// 不会出现精灵与背景脱节。
type Scene struct {
	mu         sync.Mutex
	mapper     *viewport.Mapper
	shipTexels float64

	scale          float64
	camera         viewport.Camera
	planeW, planeH float64
	sprites        map[string]*Sprite
	states         map[string]protocol.EntityState // 规范坐标，缩放变化时重新投影
}

func NewScene(mapper *viewport.Mapper, shipTexels float64) *Scene {
	if shipTexels <= 0 {
		shipTexels = DefaultShipTexels
	}
	s := &Scene{
		mapper:     mapper,
		shipTexels: shipTexels,
		sprites:    make(map[string]*Sprite),
		states:     make(map[string]protocol.EntityState),
	}
	s.mu.Lock()
	s.applyScaleLocked(mapper.Scale())
	s.mu.Unlock()
	return s
}

// Resize 视口宽高比变化：重新计算缩放并原子地更新平面与所有精灵
func (s *Scene) Resize(aspect float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyScaleLocked(s.mapper.Resize(aspect))
	return s.scale
}

func (s *Scene) applyScaleLocked(scale float64) {
	s.scale = scale
	s.camera = s.mapper.Camera()
	w, h := s.mapper.WorldSize()
	s.planeW, s.planeH = w*scale, h*scale
	for id, sp := range s.sprites {
		s.placeLocked(sp, s.states[id])
	}
}

func (s *Scene) placeLocked(sp *Sprite, st protocol.EntityState) {
	sp.X, sp.Z = s.mapper.ToRender(st.X, st.Z)
	sp.Rotation = st.Angle + math.Pi
	sp.Scale = s.shipTexels * s.scale
}

// Reconcile 用最新广播同步成员：新 ID 创建精灵，缺席的 ID 删除精灵，其余更新位置
func (s *Scene) Reconcile(entities map[string]protocol.EntityState, selfID string) (added, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.sprites {
		if _, ok := entities[id]; !ok {
			delete(s.sprites, id)
			delete(s.states, id)
			removed = append(removed, id)
		}
	}
	for id, st := range entities {
		sp, ok := s.sprites[id]
		if !ok {
			sp = &Sprite{ID: id}
			s.sprites[id] = sp
			added = append(added, id)
		}
		sp.Self = id == selfID
		s.states[id] = st
		s.placeLocked(sp, st)
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// Clear 连接断开时清空
func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sprites = make(map[string]*Sprite)
	s.states = make(map[string]protocol.EntityState)
}

// SceneView 某一时刻的场景快照，所有字段来自同一个缩放值
type SceneView struct {
	Camera      viewport.Camera
	Scale       float64
	PlaneWidth  float64
	PlaneHeight float64
	Sprites     []Sprite

	// 相机中心：渲染坐标与对应的规范坐标
	CameraX, CameraZ   float64
	CameraWX, CameraWZ float64
	FocusX, FocusZ     float64 // 跟随目标的渲染坐标
	Following          bool
}

// View 拷贝当前场景，相机位于平面中心
func (s *Scene) View() SceneView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.viewLocked()
	v.CameraX, v.CameraZ = s.planeW/2, s.planeH/2
	v.CameraWX, v.CameraWZ = s.mapper.ToCanonical(v.CameraX, v.CameraZ)
	return v
}

// Follow 拷贝当前场景，相机跟随 focus（规范坐标）并限制在平面内
func (s *Scene) Follow(focus protocol.EntityState) SceneView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.viewLocked()
	v.FocusX, v.FocusZ = s.mapper.ToRender(focus.X, focus.Z)
	v.CameraX, v.CameraZ = s.mapper.CameraTarget(v.FocusX, v.FocusZ)
	v.CameraWX, v.CameraWZ = s.mapper.ToCanonical(v.CameraX, v.CameraZ)
	v.Following = true
	return v
}

// viewLocked 精灵按 ID 排序
func (s *Scene) viewLocked() SceneView {
	v := SceneView{
		Camera:      s.camera,
		Scale:       s.scale,
		PlaneWidth:  s.planeW,
		PlaneHeight: s.planeH,
		Sprites:     make([]Sprite, 0, len(s.sprites)),
	}
	for _, sp := range s.sprites {
		v.Sprites = append(v.Sprites, *sp)
	}
	sort.Slice(v.Sprites, func(i, j int) bool { return v.Sprites[i].ID < v.Sprites[j].ID })
	return v
}

// Len 精灵数量
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sprites)
}
