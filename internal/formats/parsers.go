package formats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/any-hub/any-asset/internal/registry"
)

// Kind 描述交给宿主解码器的文件类别。
type Kind string

const (
	KindImage   Kind = "image"
	KindTexture Kind = "texture"
	KindAudio   Kind = "audio"
	KindVideo   Kind = "video"
)

// File 是未解码资源的句柄。
type File struct {
	Path string `json:"path"`
	Ext  string `json:"ext"`
	Kind Kind   `json:"kind"`
	Size int64  `json:"size"`
}

// ErrEmptyFile 表示本地文件长度为 0，通常意味着下载被截断。
var ErrEmptyFile = errors.New("empty file")

// FileHandle 返回只校验文件可读、不解码内容的解析策略。
func FileHandle(kind Kind) registry.Parser {
	return registry.ParseFunc(func(ctx context.Context, source string, _ registry.Options) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(source)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", source)
		}
		if info.Size() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyFile, source)
		}
		return File{
			Path: source,
			Ext:  filepath.Ext(source),
			Kind: kind,
			Size: info.Size(),
		}, nil
	})
}

// Text 读取整个文件为字符串。
var Text = registry.ParseFunc(func(ctx context.Context, source string, _ registry.Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	return string(data), nil
})

// Binary 读取整个文件为字节切片。
var Binary = registry.ParseFunc(func(ctx context.Context, source string, _ registry.Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(source)
})

// JSON 读取文件并解码为通用 JSON 值（对象为 map[string]any）。
var JSON = registry.ParseFunc(func(ctx context.Context, source string, _ registry.Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode json %s: %w", filepath.Base(source), err)
	}
	return out, nil
})
