package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/testwing/testwing/pkg/logger"
)

type Config struct {
	Debug    bool                 `json:"debug" toml:"debug"`
	Server   *ServerConfig        `json:"server" toml:"server"`
	Database *DatabaseConfig      `json:"database" toml:"database"`
	Browser  *BrowserConfig       `json:"browser" toml:"browser"`
	Resolver *ResolverConfig      `json:"resolver" toml:"resolver"`
	AI       *AIConfig            `json:"ai" toml:"ai"`
	Log      *logger.LoggerConfig `json:"log,omitempty" toml:"log,omitempty"`
}

type ServerConfig struct {
	Port string `json:"port" toml:"port"`
	Host string `json:"host" toml:"host"`
}

type DatabaseConfig struct {
	Path string `json:"path" toml:"path"`
}

type BrowserConfig struct {
	BinPath     string `json:"bin_path" toml:"bin_path"`
	UserDataDir string `json:"user_data_dir" toml:"user_data_dir"`
	Headless    bool   `json:"headless" toml:"headless"`
}

// ResolverConfig 元素解析与自愈配置
type ResolverConfig struct {
	SelfHealingEnabled bool `json:"self_healing_enabled" toml:"self_healing_enabled"` // 自愈链总开关
	ElementRetryCount  int  `json:"element_retry_count" toml:"element_retry_count"`   // 直接探测的重试次数
	ElementTimeoutSec  int  `json:"element_timeout_sec" toml:"element_timeout_sec"`   // 单次探测超时（秒）
	DefaultTimeoutSec  int  `json:"default_timeout_sec" toml:"default_timeout_sec"`   // 默认操作超时（秒）
}

// ElementTimeout 单次探测超时
func (c *ResolverConfig) ElementTimeout() time.Duration {
	if c.ElementTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ElementTimeoutSec) * time.Second
}

// DefaultTimeout 默认操作超时
func (c *ResolverConfig) DefaultTimeout() time.Duration {
	if c.DefaultTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.DefaultTimeoutSec) * time.Second
}

// AIConfig AI 视觉解析与 AI 自愈策略配置
type AIConfig struct {
	Enabled             bool    `json:"enabled" toml:"enabled"`
	ConfidenceThreshold float64 `json:"confidence_threshold" toml:"confidence_threshold"` // 默认 0.7
	Provider            string  `json:"provider" toml:"provider"`
	APIKey              string  `json:"api_key" toml:"api_key"`
	Model               string  `json:"model" toml:"model"`
	BaseURL             string  `json:"base_url,omitempty" toml:"base_url,omitempty"`
}

func defaultConfig() *Config {
	browserCfg := &BrowserConfig{UserDataDir: "./chrome_user_data", Headless: true}
	// 根据系统设置默认的 binpath
	if envPath := os.Getenv("CHROME_BIN_PATH"); envPath != "" {
		browserCfg.BinPath = envPath
	} else {
		// 常见的 Chrome/Chromium 安装路径
		commonPaths := []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/usr/bin/google-chrome-stable",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
			"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
		}
		for _, p := range commonPaths {
			if _, err := os.Stat(p); err == nil {
				browserCfg.BinPath = p
				break
			}
		}
	}

	return &Config{
		Server: &ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: &DatabaseConfig{
			Path: "./data/testwing.db",
		},
		Browser: browserCfg,
		Resolver: &ResolverConfig{
			SelfHealingEnabled: true,
			ElementRetryCount:  1,
			ElementTimeoutSec:  5,
			DefaultTimeoutSec:  30,
		},
		AI: &AIConfig{
			Enabled:             false,
			ConfidenceThreshold: 0.7,
			Model:               "gpt-4o-mini",
		},
		Log: &logger.LoggerConfig{
			Level: "info",
			File:  "./log/testwing.log",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// 如果本地不存在 data 和 log 目录，则创建
		if _, err := os.Stat("./data"); os.IsNotExist(err) {
			os.Mkdir("./data", 0o755)
		}
		if _, err := os.Stat("./log"); os.IsNotExist(err) {
			os.Mkdir("./log", 0o755)
		}
		defConfig := defaultConfig()
		applyEnvOverrides(defConfig)
		// 文件不存在时把默认配置写到 path，方便用户修改
		if os.IsNotExist(err) {
			if cfgData, merr := toml.Marshal(defConfig); merr == nil {
				os.WriteFile(path, cfgData, 0o644)
			}
		}
		return defConfig, nil
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// 确保所有必需的配置项都有值
	def := defaultConfig()
	if cfg.Server == nil {
		cfg.Server = def.Server
	}
	if cfg.Database == nil {
		cfg.Database = def.Database
	}
	if cfg.Browser == nil {
		cfg.Browser = def.Browser
	}
	if cfg.Resolver == nil {
		cfg.Resolver = def.Resolver
	}
	if cfg.AI == nil {
		cfg.AI = def.AI
	}
	if cfg.AI.ConfidenceThreshold <= 0 {
		cfg.AI.ConfidenceThreshold = 0.7
	}
	if cfg.Log == nil {
		cfg.Log = &logger.LoggerConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides 环境变量覆盖（部署时无需改配置文件）
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SELF_HEALING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Resolver.SelfHealingEnabled = b
		}
	}
	if v := os.Getenv("ELEMENT_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Resolver.ElementRetryCount = n
		}
	}
	if v := os.Getenv("ELEMENT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Resolver.ElementTimeoutSec = n
		}
	}
	if v := os.Getenv("DEFAULT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Resolver.DefaultTimeoutSec = n
		}
	}
	if v := os.Getenv("AI_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AI.Enabled = b
		}
	}
	if v := os.Getenv("AI_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.AI.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.AI.APIKey == "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("CHROME_BIN_PATH"); v != "" {
		cfg.Browser.BinPath = v
	}
}
