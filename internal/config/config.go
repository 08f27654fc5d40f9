// Package config 负责加载守护进程的 JSON 配置。
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述守护进程启动阶段需要加载的全部配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	LLM     LLMConfig     `json:"llm"`
	Chain   ChainConfig   `json:"chain"`
	Stream  StreamConfig  `json:"stream"`
	Storage StorageConfig `json:"storage"`
	Notify  NotifyConfig  `json:"notify"`
	Logger  LoggerConfig  `json:"logger"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string `json:"provider"`
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ChainConfig 描述链后端与外部签名方。
type ChainConfig struct {
	DefinitionsPath string `json:"definitions_path"`
	DefaultChain    string `json:"default_chain"`
	SignerURL       string `json:"signer_url"`
	SignerKeyRef    string `json:"signer_key_ref"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// StreamConfig 是支付流核心的行为参数。
type StreamConfig struct {
	// DisplayTimezone 是解析相对时间和展示结果时使用的时区标识。
	DisplayTimezone string `json:"display_timezone"`
	// DefaultMode 为 readonly 或 signed。
	DefaultMode   string `json:"default_mode"`
	TokenDecimals int32  `json:"token_decimals"`
	HistoryLimit  int    `json:"history_limit"`
}

// StorageConfig 统一描述历史与会话的存储后端。
type StorageConfig struct {
	History HistoryStoreConfig `json:"history"`
	Session SessionStoreConfig `json:"session"`
}

// HistoryStoreConfig 选择会话历史的落盘方式。
type HistoryStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// SessionStoreConfig 选择会话状态的存储后端。
type SessionStoreConfig struct {
	Driver     string `json:"driver"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// NotifyConfig 控制分发事件的对外广播。
type NotifyConfig struct {
	Driver  string `json:"driver"`
	URL     string `json:"url"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// LoggerConfig 与 pkg/logger 的配置一一对应。
type LoggerConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}

	if c.Chain.DefinitionsPath == "" {
		c.Chain.DefinitionsPath = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Chain.DefinitionsPath) {
		c.Chain.DefinitionsPath = filepath.Join(baseDir, c.Chain.DefinitionsPath)
	}
	if c.Chain.TimeoutSeconds <= 0 {
		c.Chain.TimeoutSeconds = 30
	}

	if c.Stream.DisplayTimezone == "" {
		c.Stream.DisplayTimezone = "Asia/Shanghai"
	}
	if c.Stream.DefaultMode == "" {
		c.Stream.DefaultMode = "readonly"
	}
	if c.Stream.TokenDecimals <= 0 {
		c.Stream.TokenDecimals = 8
	}
	if c.Stream.HistoryLimit <= 0 {
		c.Stream.HistoryLimit = 8
	}

	if c.Storage.History.Driver == "" {
		c.Storage.History.Driver = "memory"
	}
	if c.Storage.Session.Driver == "" {
		c.Storage.Session.Driver = "memory"
	}
	if c.Storage.Session.TTLSeconds <= 0 {
		c.Storage.Session.TTLSeconds = 86400
	}

	if c.Notify.Driver == "" {
		c.Notify.Driver = "noop"
	}
	if c.Notify.Queue == "" {
		c.Notify.Queue = "moveflow.dispatch"
	}
}
