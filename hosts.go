package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// fileScriptEngine 是 CLI 内置的脚本宿主：没有嵌入脚本运行时，只校验入口脚本可读且非空。
type fileScriptEngine struct {
	logger *logrus.Logger
}

func newFileScriptEngine(logger *logrus.Logger) *fileScriptEngine {
	return &fileScriptEngine{logger: logger}
}

func (e *fileScriptEngine) Exec(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	size, err := regularFileSize(path)
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("script %s is empty", path)
	}
	e.logger.WithFields(logrus.Fields{
		"action": "script_exec",
		"path":   path,
		"size":   size,
	}).Info("script loaded")
	return nil
}

// fileFontRegistry 记录字体族并校验字体文件存在。
type fileFontRegistry struct {
	logger *logrus.Logger
}

func newFileFontRegistry(logger *logrus.Logger) *fileFontRegistry {
	return &fileFontRegistry{logger: logger}
}

func (r *fileFontRegistry) Register(_ context.Context, family, source string) error {
	if _, err := regularFileSize(source); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{
		"action": "font_register",
		"family": family,
		"source": source,
	}).Info("font registered")
	return nil
}

func regularFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}
