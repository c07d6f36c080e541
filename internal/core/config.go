package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config는 전체 애플리케이션 설정을 담는 구조체
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DW      DWConfig      `yaml:"dw"`
	Poll    PollConfig    `yaml:"poll"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Probe   ProbeConfig   `yaml:"probe"`
	State   StateConfig   `yaml:"state"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	HTTPPort   int  `yaml:"http_port"`
	Production bool `yaml:"production"`
}

// DWConfig는 DW Spectrum 서버 접속 설정
type DWConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	SSL       bool   `yaml:"ssl"`
	VerifySSL bool   `yaml:"verify_ssl"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// PollConfig는 폴링 주기와 쓰기 재시도 설정 (초 단위)
type PollConfig struct {
	CamerasInterval int `yaml:"cameras_interval"`
	ServerInterval  int `yaml:"server_interval"`
	StatusInterval  int `yaml:"status_interval"`
	WriteRetryCount int `yaml:"write_retry_count"`
	WriteRetryDelay int `yaml:"write_retry_delay"`
}

// MQTTConfig는 Home Assistant MQTT 브리지 설정
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	BaseTopic       string `yaml:"base_topic"`
}

// ProbeConfig는 RTSP 스트림 프로브 설정
type ProbeConfig struct {
	Enabled bool `yaml:"enabled"`
	Timeout int  `yaml:"timeout"`
}

// StateConfig는 로컬 상태 저장 설정
type StateConfig struct {
	FilePath string `yaml:"file_path"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// LoadConfig는 YAML 파일에서 설정을 로드합니다
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	// 설정 검증
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// applyDefaults는 비어 있는 설정값에 기본값을 채웁니다
func (c *Config) applyDefaults() {
	if c.Poll.CamerasInterval <= 0 {
		c.Poll.CamerasInterval = 15
	}
	if c.Poll.ServerInterval <= 0 {
		c.Poll.ServerInterval = 15
	}
	if c.Poll.StatusInterval <= 0 {
		c.Poll.StatusInterval = 30
	}
	if c.Poll.WriteRetryCount <= 0 {
		c.Poll.WriteRetryCount = 3
	}
	if c.Poll.WriteRetryDelay <= 0 {
		c.Poll.WriteRetryDelay = 1
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = 5
	}
	if c.State.FilePath == "" {
		c.State.FilePath = "data/camera_state.json"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "dwbridge"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "dwbridge"
	}
}

// Validate는 설정값의 유효성을 검증합니다
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.DW.Host == "" {
		return fmt.Errorf("dw.host is required")
	}

	if c.DW.Port <= 0 || c.DW.Port > 65535 {
		return fmt.Errorf("invalid dw.port: %d", c.DW.Port)
	}

	if c.DW.Username == "" {
		return fmt.Errorf("dw.username is required")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}

	return nil
}
