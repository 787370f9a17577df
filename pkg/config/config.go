package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Manager 配置管理器，从本地文件加载配置并支持环境变量覆盖
type Manager struct {
	viper      *viper.Viper
	configPath string
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	return &Manager{
		viper: viper.New(),
	}
}

// LoadConfig 加载配置
// configPath: 本地配置文件路径
// envPrefix: 环境变量前缀（如 AD_ENGINE，AD_ENGINE_SERVER_HTTP_PORT 覆盖 server.http_port）
func (m *Manager) LoadConfig(configPath, envPrefix string) error {
	m.configPath = configPath
	m.viper.SetConfigFile(configPath)

	if envPrefix != "" {
		m.viper.SetEnvPrefix(envPrefix)
		m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		m.viper.AutomaticEnv()
	}

	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read local config failed: %w", err)
	}
	return nil
}

// SetDefault 设置默认值
func (m *Manager) SetDefault(key string, value interface{}) {
	m.viper.SetDefault(key, value)
}

// Unmarshal 将配置反序列化到结构体
func (m *Manager) Unmarshal(dest interface{}) error {
	if err := m.viper.Unmarshal(dest); err != nil {
		return fmt.Errorf("unmarshal config failed: %w", err)
	}
	return nil
}

// Viper 返回底层 viper 实例
func (m *Manager) Viper() *viper.Viper {
	return m.viper
}
