// Package transport downloads remote files to a local destination. It is the
// only package that talks to the network; the fetch pipeline calls it after the
// scheduler has admitted a download.
package transport

import (
	"context"
	"net/http"
)

// ProgressFunc 报告已写入字节数与总字节数（未知时为 -1）。
type ProgressFunc func(written, total int64)

// Transport 将远程 URL 下载到 destPath，成功时返回最终写入的路径。
type Transport interface {
	DownloadToFile(ctx context.Context, url, destPath string, header http.Header, onProgress ProgressFunc) (string, error)
}
