package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if !filepath.IsAbs(cfg.Global.CacheRoot) {
		t.Fatalf("CacheRoot 应转换为绝对路径: %s", cfg.Global.CacheRoot)
	}
	if cfg.Global.DownloadTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("DownloadTimeout 应该自动填充默认值")
	}
	if cfg.Global.TickInterval.DurationValue() != 16*time.Millisecond {
		t.Fatalf("TickInterval 解析错误: %s", cfg.Global.TickInterval.DurationValue())
	}
	if cfg.Global.RemoteServer != "https://cdn.example.com/" {
		t.Fatalf("RemoteServer 应补齐斜杠: %s", cfg.Global.RemoteServer)
	}
	if cfg.Global.BundleVersion("dlc") != "3" {
		t.Fatalf("BundleVersions 未生效: %v", cfg.Global.BundleVersions)
	}
}

func TestEffectiveProfilesOverrideDefaults(t *testing.T) {
	cfg := &Config{Profiles: []ProfileConfig{
		{Name: "Preload", MaxConcurrency: 2, MaxPerTick: 1},
		{Name: "audio", MaxConcurrency: 4, MaxPerTick: 4},
	}}
	profiles := cfg.EffectiveProfiles()
	byName := map[string]ProfileConfig{}
	for _, p := range profiles {
		byName[p.Name] = p
	}
	if len(byName) != 5 {
		t.Fatalf("期望 5 个流量类别，得到 %d", len(byName))
	}
	if byName[ProfilePreload].MaxConcurrency != 2 {
		t.Fatalf("preload 应被覆盖: %+v", byName[ProfilePreload])
	}
	if byName[ProfileScene].MaxConcurrency != 32 || byName[ProfileScene].MaxPerTick != 64 {
		t.Fatalf("scene 应保持默认值: %+v", byName[ProfileScene])
	}
	if byName[ProfileDefault].MaxConcurrency != 30 || byName[ProfileDefault].MaxPerTick != 60 {
		t.Fatalf("default 应保持默认值: %+v", byName[ProfileDefault])
	}
	if _, ok := byName["audio"]; !ok {
		t.Fatalf("自定义流量类别应被加入")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateProfiles(t *testing.T) {
	testCases := []struct {
		name      string
		profile   ProfileConfig
		shouldErr bool
	}{
		{"ok", ProfileConfig{Name: "scene", MaxConcurrency: 1, MaxPerTick: 1}, false},
		{"missing name", ProfileConfig{MaxConcurrency: 1, MaxPerTick: 1}, true},
		{"zero concurrency", ProfileConfig{Name: "scene", MaxPerTick: 1}, true},
		{"zero per tick", ProfileConfig{Name: "scene", MaxConcurrency: 1}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Profiles = []ProfileConfig{tc.profile}
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for profile %+v", tc.profile)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for profile %+v: %v", tc.profile, err)
			}
		})
	}
}

func TestValidateRejectsDuplicateProfiles(t *testing.T) {
	cfg := validConfig()
	cfg.Profiles = []ProfileConfig{
		{Name: "scene", MaxConcurrency: 1, MaxPerTick: 1},
		{Name: "Scene", MaxConcurrency: 2, MaxPerTick: 2},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("重复的 Profile 名称应报错")
	}
}

func TestValidateRemoteBundlesRequireServer(t *testing.T) {
	cfg := validConfig()
	cfg.Global.RemoteServer = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("仅提供 RemoteBundles 时应报错")
	}

	cfg = validConfig()
	cfg.Global.RemoteServer = "ftp://cdn.x/"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非 http(s) 服务器应报错")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5100,
			CacheRoot:       "./data",
			RemoteServer:    "https://cdn.x/",
			RemoteBundles:   []string{"dlc"},
			TickInterval:    Duration(16 * time.Millisecond),
			DownloadTimeout: Duration(time.Second),
		},
	}
}
