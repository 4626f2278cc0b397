package sim

import "math"

// 物理常量均在规范世界坐标（贴图像素）下定义
const (
	Acceleration  = 0.4
	MaxSpeed      = 10.0
	Friction      = 0.98
	RotationSpeed = 0.05
)

// Params 单步积分参数
type Params struct {
	Acceleration  float64
	MaxSpeed      float64
	Friction      float64 // < 1
	RotationSpeed float64 // 弧度/Tick
	WorldWidth    float64
	WorldHeight   float64
}

// DefaultParams 使用默认手感常量，世界尺寸取背景贴图尺寸
func DefaultParams(width, height float64) Params {
	return Params{
		Acceleration:  Acceleration,
		MaxSpeed:      MaxSpeed,
		Friction:      Friction,
		RotationSpeed: RotationSpeed,
		WorldWidth:    width,
		WorldHeight:   height,
	}
}

// Input 当前按键状态快照；DownLeft/DownRight 为触屏下方按钮，等同左/右转
type Input struct {
	Forward   bool
	Left      bool
	Right     bool
	DownLeft  bool
	DownRight bool
}

// State 本地模拟状态（私有，不直接上报）
type State struct {
	X, Z   float64
	Angle  float64
	VX, VZ float64
}

// Spawn 出生在世界中心，朝向 0
func Spawn(width, height float64) State {
	return State{X: width / 2, Z: height / 2}
}

// Pose 上报用的 (x, z, angle)
func (s State) Pose() (x, z, angle float64) {
	return s.X, s.Z, s.Angle
}

// Speed 当前速度大小
func (s State) Speed() float64 {
	return math.Hypot(s.VX, s.VZ)
}

// Step 推进一个固定 Tick：推力 → 限速 → 转向 → 积分 → 阻尼 → 边界裁剪。
// 边界处不清零速度，贴墙时速度仍在被阻挡方向上累积。
func Step(s State, in Input, p Params) State {
	if in.Forward {
		s.VX += math.Sin(s.Angle) * p.Acceleration
		s.VZ += math.Cos(s.Angle) * p.Acceleration
	}
	if speed := s.Speed(); speed > p.MaxSpeed {
		s.VX = s.VX / speed * p.MaxSpeed
		s.VZ = s.VZ / speed * p.MaxSpeed
	}

	// 左右同时按下互相抵消
	if in.Left || in.DownLeft {
		s.Angle += p.RotationSpeed
	}
	if in.Right || in.DownRight {
		s.Angle -= p.RotationSpeed
	}

	s.X += s.VX
	s.Z += s.VZ

	s.VX *= p.Friction
	s.VZ *= p.Friction

	s.X = clamp(s.X, 0, p.WorldWidth)
	s.Z = clamp(s.Z, 0, p.WorldHeight)
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
