// Package media 保存上传的车辆图片并返回可访问的 URL。
//
// 两种实现：LocalSink 写入本地目录并由静态路由提供访问；
// ObjectStoreSink 上传到 S3 兼容的对象存储（MinIO 等）。
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
)

// sniffLen http.DetectContentType 最多读取的字节数
const sniffLen = 512

var (
	// ErrUnsupportedType 不是允许的图片格式
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrForeignURL URL 不属于当前存储
	ErrForeignURL = errors.New("url does not belong to this sink")
)

// 允许上传的图片类型及其默认扩展名
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Upload 一次图片上传
type Upload struct {
	Reader      io.Reader
	Size        int64
	Filename    string // 客户端提供的原始文件名，只取扩展名
	ContentType string
}

// Sink 图片存储
type Sink interface {
	// Store 保存图片并返回可访问的 URL
	Store(ctx context.Context, upload Upload) (string, error)
	// Remove 删除 Store 返回的 URL 对应的对象
	Remove(ctx context.Context, url string) error
}

// DetectContentType 读取文件头判断类型，并把读取位置恢复到开头
func DetectContentType(r io.ReadSeeker) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read file header: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind file: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

// Allowed 是否是允许的图片类型
func Allowed(contentType string) bool {
	_, ok := allowedTypes[contentType]
	return ok
}

// extension 优先使用原始文件名的扩展名（小写），不合法时按类型推断
func extension(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if extPattern.MatchString(ext) {
		return ext
	}
	if def, ok := allowedTypes[contentType]; ok {
		return def
	}
	return ""
}

// joinURL 拼接 URL，避免重复或缺失的斜杠
func joinURL(base string, parts ...string) string {
	out := strings.TrimRight(base, "/")
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		out += "/" + p
	}
	return out
}
