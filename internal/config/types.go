package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：日志、缓存目录、远程 bundle 服务器与调度节拍。
type GlobalConfig struct {
	ListenPort      int               `mapstructure:"ListenPort"`
	LogLevel        string            `mapstructure:"LogLevel"`
	LogFilePath     string            `mapstructure:"LogFilePath"`
	LogMaxSize      int               `mapstructure:"LogMaxSize"`
	LogMaxBackups   int               `mapstructure:"LogMaxBackups"`
	LogCompress     bool              `mapstructure:"LogCompress"`
	CacheRoot       string            `mapstructure:"CacheRoot"`
	IndexInMemory   bool              `mapstructure:"IndexInMemory"`
	IndexLRUSize    int               `mapstructure:"IndexLRUSize"`
	RemoteServer    string            `mapstructure:"RemoteServer"`
	RemoteBundles   []string          `mapstructure:"RemoteBundles"`
	BundleVersions  map[string]string `mapstructure:"BundleVersions"`
	TickInterval    Duration          `mapstructure:"TickInterval"`
	DownloadTimeout Duration          `mapstructure:"DownloadTimeout"`
}

// ProfileConfig 对应一个流量类别（preload/scene/bundle/default）的并发上限与单 tick 派发上限。
type ProfileConfig struct {
	Name           string `mapstructure:"Name"`
	MaxConcurrency int    `mapstructure:"MaxConcurrency"`
	MaxPerTick     int    `mapstructure:"MaxPerTick"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig    `mapstructure:",squash"`
	Profiles []ProfileConfig `mapstructure:"Profile"`
}

// 默认流量类别名称。
const (
	ProfileDefault = "default"
	ProfilePreload = "preload"
	ProfileScene   = "scene"
	ProfileBundle  = "bundle"
)

// DefaultProfiles 返回内置的四个流量类别，数值与引擎默认预设保持一致。
func DefaultProfiles() []ProfileConfig {
	return []ProfileConfig{
		{Name: ProfileDefault, MaxConcurrency: 30, MaxPerTick: 60},
		{Name: ProfilePreload, MaxConcurrency: 15, MaxPerTick: 30},
		{Name: ProfileScene, MaxConcurrency: 32, MaxPerTick: 64},
		{Name: ProfileBundle, MaxConcurrency: 32, MaxPerTick: 64},
	}
}

// EffectiveProfiles 将配置中的 [[Profile]] 按名称覆盖到内置默认值之上，结果按名称排序。
func (c *Config) EffectiveProfiles() []ProfileConfig {
	merged := make(map[string]ProfileConfig)
	for _, p := range DefaultProfiles() {
		merged[p.Name] = p
	}
	if c != nil {
		for _, p := range c.Profiles {
			name := normalizeName(p.Name)
			if name == "" {
				continue
			}
			p.Name = name
			merged[name] = p
		}
	}
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)
	result := make([]ProfileConfig, 0, len(names))
	for _, name := range names {
		result = append(result, merged[name])
	}
	return result
}

// IsRemoteBundle 判断 bundle 是否声明为远程 bundle。
func (g GlobalConfig) IsRemoteBundle(name string) bool {
	for _, candidate := range g.RemoteBundles {
		if strings.TrimSpace(candidate) == name {
			return true
		}
	}
	return false
}

// BundleVersion 返回配置中为 bundle 指定的版本号，未配置时为空。
func (g GlobalConfig) BundleVersion(name string) string {
	if g.BundleVersions == nil {
		return ""
	}
	if v, ok := g.BundleVersions[name]; ok {
		return strings.TrimSpace(v)
	}
	// viper 会把表的键统一转为小写
	return strings.TrimSpace(g.BundleVersions[strings.ToLower(name)])
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
