package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// 同一毫秒内文件名冲突时的最大重试次数
const maxNameAttempts = 100

// LocalSink 把图片写入本地目录，由 URLPrefix 下的静态路由提供访问
type LocalSink struct {
	logger    *zap.Logger
	dir       string
	urlPrefix string
	baseURL   string
	now       func() time.Time
}

// NewLocalSink 创建本地存储并确保目录存在。
// urlPrefix 是静态路由前缀（如 /uploads），baseURL 非空时返回绝对 URL。
func NewLocalSink(logger *zap.Logger, dir, urlPrefix, baseURL string) (*LocalSink, error) {
	if dir == "" {
		return nil, errors.New("upload dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}
	return &LocalSink{
		logger:    logger,
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}, nil
}

// Dir 存储目录
func (s *LocalSink) Dir() string {
	return s.dir
}

// URLPrefix 静态路由前缀
func (s *LocalSink) URLPrefix() string {
	return s.urlPrefix
}

// Store 以 car_<毫秒时间戳><扩展名> 命名写入文件
func (s *LocalSink) Store(ctx context.Context, upload Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := extension(upload.Filename, upload.ContentType)
	stamp := s.now().UnixMilli()

	var (
		f    *os.File
		name string
		err  error
	)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name = fmt.Sprintf("car_%d%s", stamp, ext)
		if attempt > 0 {
			name = fmt.Sprintf("car_%d_%d%s", stamp, attempt, ext)
		}
		f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil || !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("create photo file: %w", err)
	}

	path := f.Name()
	if _, err := io.Copy(f, upload.Reader); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write photo file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close photo file: %w", err)
	}

	url := s.baseURL + s.urlPrefix + "/" + name
	s.logger.Debug("Photo stored locally", zap.String("file", path), zap.String("url", url))
	return url, nil
}

// Remove 删除 URL 对应的文件，文件已不存在视为成功
func (s *LocalSink) Remove(ctx context.Context, url string) error {
	prefix := s.baseURL + s.urlPrefix + "/"
	if !strings.HasPrefix(url, prefix) {
		return fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	name := strings.TrimPrefix(url, prefix)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %s", ErrForeignURL, url)
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove photo file: %w", err)
	}
	return nil
}
