package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.CacheRoot) == "" {
		return newFieldError("Global.CacheRoot", "不能为空")
	}
	if g.IndexLRUSize < 0 {
		return newFieldError("Global.IndexLRUSize", "不能为负数")
	}
	if g.TickInterval.DurationValue() <= 0 {
		return newFieldError("Global.TickInterval", "必须大于 0")
	}
	if g.DownloadTimeout.DurationValue() <= 0 {
		return newFieldError("Global.DownloadTimeout", "必须大于 0")
	}
	if g.RemoteServer != "" {
		if err := validateServer(g.RemoteServer); err != nil {
			return fmt.Errorf("Global.RemoteServer: %w", err)
		}
	}
	for _, name := range g.RemoteBundles {
		if strings.TrimSpace(name) == "" {
			return newFieldError("Global.RemoteBundles", "bundle 名称不能为空")
		}
		if strings.Contains(name, "/") {
			return newFieldError("Global.RemoteBundles", "bundle 名称不允许包含路径: "+name)
		}
	}
	if len(g.RemoteBundles) > 0 && g.RemoteServer == "" {
		return newFieldError("Global.RemoteServer", "声明了 RemoteBundles 时不能为空")
	}

	seen := map[string]struct{}{}
	for _, p := range c.Profiles {
		name := normalizeName(p.Name)
		if name == "" {
			return newFieldError("Profile[].Name", "不能为空")
		}
		if _, exists := seen[name]; exists {
			return newFieldError(profileField(name, "Name"), "重复")
		}
		seen[name] = struct{}{}
		if p.MaxConcurrency <= 0 {
			return newFieldError(profileField(name, "MaxConcurrency"), "必须大于 0")
		}
		if p.MaxPerTick <= 0 {
			return newFieldError(profileField(name, "MaxPerTick"), "必须大于 0")
		}
	}

	return nil
}

func validateServer(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，服务器: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("服务器缺少 Host: %s", raw)
	}
	return nil
}
