package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// DefaultFolder 对象存储中的固定逻辑目录
const DefaultFolder = "cars"

// objectClient 用到的 minio 客户端能力，测试时替换
type objectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// ObjectStoreConfig 对象存储配置
type ObjectStoreConfig struct {
	Endpoint  string // host:port 或 http(s)://host:port
	AccessKey string
	SecretKey string
	Bucket    string
	Folder    string
	UseSSL    bool
	PublicURL string // 非空时用它代替 endpoint 生成访问 URL（CDN 等）
}

// ObjectStoreSink 把图片上传到 S3 兼容的对象存储
type ObjectStoreSink struct {
	logger  *zap.Logger
	client  objectClient
	bucket  string
	folder  string
	baseURL string
	now     func() time.Time
}

// normaliseEndpoint 接受 "minio:9000" 或 "https://minio:9000"
func normaliseEndpoint(raw string, useSSL bool) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, errors.New("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, errors.New("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	return raw, useSSL, nil
}

// NewObjectStoreSink 创建对象存储客户端
func NewObjectStoreSink(logger *zap.Logger, cfg ObjectStoreConfig) (*ObjectStoreSink, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("object store configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		base = joinURL(scheme+"://"+endpoint, cfg.Bucket)
	}

	return newObjectStoreSink(logger, client, cfg.Bucket, cfg.Folder, base), nil
}

func newObjectStoreSink(logger *zap.Logger, client objectClient, bucket, folder, baseURL string) *ObjectStoreSink {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		folder = DefaultFolder
	}
	return &ObjectStoreSink{
		logger:  logger,
		client:  client,
		bucket:  bucket,
		folder:  folder,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// EnsureBucket 存储桶不存在时创建
func (s *ObjectStoreSink) EnsureBucket(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if found {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("Created photo bucket", zap.String("bucket", s.bucket))
	return nil
}

// Store 上传图片到 <folder>/car_<毫秒时间戳>_<随机串><扩展名>
func (s *ObjectStoreSink) Store(ctx context.Context, upload Upload) (string, error) {
	ext := extension(upload.Filename, upload.ContentType)
	key := path.Join(s.folder, fmt.Sprintf("car_%d_%s%s", s.now().UnixMilli(), uuid.NewString()[:8], ext))

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, upload.Reader, upload.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	location := joinURL(s.baseURL, key)
	s.logger.Debug("Photo uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size),
	)
	return location, nil
}

// Remove 删除 URL 对应的对象
func (s *ObjectStoreSink) Remove(ctx context.Context, rawURL string) error {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	key := strings.TrimPrefix(rawURL, prefix)
	if !strings.HasPrefix(key, s.folder+"/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
