package formats

import "github.com/any-hub/any-asset/internal/registry"

// Builtins 是需要宿主协作者的策略，由调用方（fetch 包）提供；为 nil 的项不注册。
type Builtins struct {
	Script       registry.Downloader
	ScriptParser registry.Parser
	Bundle       registry.Downloader
	Font         registry.Downloader
	FontParser   registry.Parser
}

var (
	imageExts   = []string{".png", ".jpg", ".bmp", ".jpeg", ".gif", ".ico", ".tiff", ".webp", ".image"}
	textureExts = []string{".pvr", ".pkm"}
	audioExts   = []string{".mp3", ".ogg", ".wav", ".m4a"}
	videoExts   = []string{".mp4", ".avi", ".mov", ".mpg", ".mpeg", ".rm", ".rmvb"}
	textExts    = []string{".txt", ".xml", ".vsh", ".fsh", ".atlas", ".tmx", ".tsx", ".fnt", ".plist"}
	jsonExts    = []string{".json", ".ExportJson"}
	binaryExts  = []string{".binary", ".bin", ".dbbin", ".skel"}
	fontExts    = []string{".font", ".eot", ".ttf", ".woff", ".svg", ".ttc"}
	scriptExts  = []string{".js", ".jsc"}
)

// RegisterDefaults 写入内置分派表：所有文件类扩展名使用缓存感知下载，
// 解析策略按类别区分；未识别扩展名回退到文本下载与解析。
func RegisterDefaults(reg *registry.Registry, b Builtins) {
	reg.RegisterDownload(registry.KeyDefault, registry.CachedDownload)
	reg.RegisterParse(registry.KeyDefault, Text)

	groups := []struct {
		exts   []string
		parser registry.Parser
	}{
		{imageExts, FileHandle(KindImage)},
		{textureExts, FileHandle(KindTexture)},
		{audioExts, FileHandle(KindAudio)},
		{videoExts, FileHandle(KindVideo)},
		{textExts, Text},
		{jsonExts, JSON},
		{binaryExts, Binary},
		{fontExts, b.FontParser},
	}
	for _, group := range groups {
		for _, ext := range group.exts {
			reg.RegisterDownload(ext, registry.CachedDownload)
			if group.parser != nil {
				reg.RegisterParse(ext, group.parser)
			}
		}
	}

	if b.Font != nil {
		for _, ext := range fontExts {
			reg.RegisterDownload(ext, b.Font)
		}
	}

	for _, ext := range scriptExts {
		if b.Script != nil {
			reg.RegisterDownload(ext, b.Script)
		}
		if b.ScriptParser != nil {
			reg.RegisterParse(ext, b.ScriptParser)
		}
	}
	if b.Bundle != nil {
		reg.RegisterDownload(registry.KeyBundle, b.Bundle)
	}
}
