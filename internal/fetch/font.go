package fetch

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-asset/internal/registry"
)

// FontRegistry 把字体文件注册到宿主文字渲染系统，返回时字体应已可用。
type FontRegistry interface {
	Register(ctx context.Context, family, source string) error
}

// FontLoader 是字体扩展名的下载策略，结果为字体族名称。
type FontLoader struct {
	fonts  FontRegistry
	logger *logrus.Logger
}

// NewFontLoader 创建字体加载器，fonts 为 nil 时只推导名称。
func NewFontLoader(fonts FontRegistry, logger *logrus.Logger) *FontLoader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FontLoader{fonts: fonts, logger: logger}
}

// Download 实现 registry.Downloader。字体族名称由请求 URL 推导，而不是缓存文件名。
func (f *FontLoader) Download(ctx context.Context, req registry.Request) (any, error) {
	if req.Fetcher == nil {
		return nil, errors.New("fetcher required")
	}
	return req.Fetcher.FetchFile(ctx, req.URL, req.Options, f.parserFor(req.URL))
}

// Parser 返回按本地路径推导名称的解析策略，用于直接解析本地字体。
func (f *FontLoader) Parser() registry.Parser {
	return f.parserFor("")
}

func (f *FontLoader) parserFor(url string) registry.Parser {
	return registry.ParseFunc(func(ctx context.Context, source string, _ registry.Options) (any, error) {
		handle := url
		if handle == "" {
			handle = source
		}
		family := FontFamily(handle)
		if f.fonts == nil {
			return family, nil
		}
		// 注册失败时仍返回名称：渲染会回退到默认字形，比整体失败更可接受。
		if err := f.fonts.Register(ctx, family, source); err != nil {
			f.logger.WithFields(logrus.Fields{
				"action": "font",
				"family": family,
				"source": source,
			}).WithError(err).Warn("font_register_failed")
		}
		return family, nil
	})
}

// FontFamily 由文件名推导字体族：去掉 .ttf 及之后部分并追加 _LABEL，含空格时加引号；
// 不含 .ttf 的句柄原样返回。
func FontFamily(handle string) string {
	ttf := strings.LastIndex(handle, ".ttf")
	if ttf == -1 {
		return handle
	}
	start := strings.LastIndex(handle[:ttf], "/") + 1
	family := handle[start:ttf] + "_LABEL"
	if strings.Contains(family, " ") {
		family = `"` + family + `"`
	}
	return family
}
