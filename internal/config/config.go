// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（configs/{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 环境：
//   - 开发: APP_ENV=dev (默认) → configs/dev.yaml
//   - 测试: APP_ENV=test → configs/test.yaml
//   - 生产: APP_ENV=prod → /etc/agents-observer/prod.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Backend BackendConfig `yaml:"backend"`
	Gateway GatewayConfig `yaml:"gateway"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig 远端 Agent 执行服务配置
type BackendConfig struct {
	URL          string `yaml:"url"`           // 远端服务地址
	PollInterval string `yaml:"poll_interval"` // 轮询间隔，如 "500ms"
	EventLogSize int    `yaml:"event_log_size"`
}

// GatewayConfig 快照网关配置
type GatewayConfig struct {
	Port string `yaml:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env          Environment
	BackendURL   string
	PollInterval time.Duration
	EventLogSize int
	GatewayPort  string
	LogLevel     string
	LogFormat    string
}

// Load 加载配置
//
// 自动加载 .env（当前目录或上级目录，不存在则跳过），
// 根据 APP_ENV 读取对应的 YAML 配置文件，环境变量可覆盖 YAML。
func Load() *Config {
	for _, dir := range []string{".", ".."} {
		if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg := loadYAMLConfig(env)

	cfg := &Config{
		Env:          env,
		BackendURL:   getEnv("BACKEND_URL", yamlCfg.Backend.URL),
		EventLogSize: yamlCfg.Backend.EventLogSize,
		GatewayPort:  getEnv("GATEWAY_PORT", yamlCfg.Gateway.Port),
		LogLevel:     getEnv("LOG_LEVEL", yamlCfg.Log.Level),
		LogFormat:    getEnv("LOG_FORMAT", yamlCfg.Log.Format),
	}

	if v := getEnv("POLL_INTERVAL", yamlCfg.Backend.PollInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("EVENT_LOG_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventLogSize = n
		}
	}

	// 默认值
	if cfg.BackendURL == "" {
		cfg.BackendURL = "http://localhost:8080"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.EventLogSize <= 0 {
		cfg.EventLogSize = 100
	}
	if cfg.GatewayPort == "" {
		cfg.GatewayPort = "8090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg
}

// String 返回配置摘要（用于启动日志）
func (c *Config) String() string {
	return fmt.Sprintf("env=%s backend=%s poll_interval=%s event_log_size=%d gateway_port=%s",
		c.Env, c.BackendURL, c.PollInterval, c.EventLogSize, c.GatewayPort)
}

// loadYAMLConfig 根据环境加载 YAML 配置文件（不存在时返回零值）
func loadYAMLConfig(env Environment) YAMLConfig {
	var cfg YAMLConfig

	paths := []string{
		filepath.Join("configs", string(env)+".yaml"),
		filepath.Join("..", "configs", string(env)+".yaml"),
	}
	if env == EnvProduction {
		paths = append([]string{"/etc/agents-observer/prod.yaml"}, paths...)
	}
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		paths = append([]string{filepath.Join(dir, string(env)+".yaml")}, paths...)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err == nil {
			return cfg
		}
	}
	return cfg
}

// parseEnv 解析环境字符串
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
