package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 提供 url/扩展名/来源/流量类别字段，供资源获取日志复用。
// source 取值 local、cache、network。
func FetchFields(url, ext, source, preset string) logrus.Fields {
	return logrus.Fields{
		"action": "fetch",
		"url":    url,
		"ext":    ext,
		"source": source,
		"preset": preset,
	}
}

// BundleFields 描述 bundle 加载状态机的当前位置。
func BundleFields(bundle, state string) logrus.Fields {
	return logrus.Fields{
		"action": "bundle",
		"bundle": bundle,
		"state":  state,
	}
}
