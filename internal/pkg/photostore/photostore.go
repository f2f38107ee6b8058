package photostore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	appconfig "skillcamp/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Store 定义头像存储接口。
type Store interface {
	// Upload 上传头像并返回可公开访问的 URL。
	Upload(ctx context.Context, filename string, body io.Reader, size int64, contentType string) (string, error)
}

// S3Store 基于 S3 兼容对象存储实现头像上传。
type S3Store struct {
	client *s3.Client
	cfg    *appconfig.PhotoConfig
}

// NewS3Store 创建 S3 头像存储。
func NewS3Store(ctx context.Context, cfg *appconfig.PhotoConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, cfg: cfg}, nil
}

// Upload 上传头像对象，key 按日期与随机 UUID 生成避免冲突。
func (s *S3Store) Upload(ctx context.Context, filename string, body io.Reader, size int64, contentType string) (string, error) {
	key := storageKey(filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return s.publicURL(key), nil
}

func (s *S3Store) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

func storageKey(filename string) string {
	d := time.Now()
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("photos/%d/%d/%d/%s%s", d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}
