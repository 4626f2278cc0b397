package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cavernsync/protocol"
)

// Config 中继与客户端共用的配置（relay.yaml）
type Config struct {
	Addr string `yaml:"addr"`

	BroadcastMs int `yaml:"broadcast_ms"`

	World WorldConfig `yaml:"world"`
	TLS   TLSConfig   `yaml:"tls"`
	Log   LogConfig   `yaml:"log"`

	// JournalDir 为空则不记录广播
	JournalDir string `yaml:"journal_dir"`
}

type WorldConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	// 未设置时出生在世界中心
	SpawnX *float64 `yaml:"spawn_x"`
	SpawnZ *float64 `yaml:"spawn_z"`
}

type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type LogConfig struct {
	File    string `yaml:"file"`
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default 默认配置
func Default() Config {
	return Config{
		Addr:        ":8081",
		BroadcastMs: int(protocol.BroadcastInterval / time.Millisecond),
		World: WorldConfig{
			Width:  protocol.DefaultWorldWidth,
			Height: protocol.DefaultWorldHeight,
		},
		TLS: TLSConfig{
			Cert: "./certs/localhost.pem",
			Key:  "./certs/localhost-key.pem",
		},
		Log: LogConfig{File: "relay.log", Level: "info", Console: true},
	}
}

// Load 读取 YAML 配置（文件不存在时使用默认值），再加载 .env 与 CAVERN_* 环境变量覆盖
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return c, err
		default:
			if err := yaml.Unmarshal(raw, &c); err != nil {
				return c, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	// .env 可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf(".env: %w", err)
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CAVERN_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("CAVERN_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("CAVERN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CAVERN_TLS_CERT"); v != "" {
		c.TLS.Cert = v
	}
	if v := os.Getenv("CAVERN_TLS_KEY"); v != "" {
		c.TLS.Key = v
	}
	if v := os.Getenv("CAVERN_JOURNAL_DIR"); v != "" {
		c.JournalDir = v
	}
}

// Validate 检查取值范围
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: empty addr")
	}
	if c.BroadcastMs <= 0 {
		return fmt.Errorf("config: broadcast_ms must be > 0, got %d", c.BroadcastMs)
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("config: world size must be > 0, got %vx%v", c.World.Width, c.World.Height)
	}
	return nil
}

// BroadcastInterval 广播周期
func (c Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastMs) * time.Millisecond
}

// Spawn 新实体的默认状态
func (c Config) Spawn() protocol.EntityState {
	s := protocol.EntityState{X: c.World.Width / 2, Z: c.World.Height / 2}
	if c.World.SpawnX != nil {
		s.X = *c.World.SpawnX
	}
	if c.World.SpawnZ != nil {
		s.Z = *c.World.SpawnZ
	}
	return s
}
