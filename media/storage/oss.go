package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// ossBucket is the part of *oss.Bucket the provider uses.
type ossBucket interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
	DeleteObject(objectKey string, options ...oss.Option) error
	IsObjectExist(objectKey string, options ...oss.Option) (bool, error)
	SignURL(objectKey string, method oss.HTTPMethod, expiredInSec int64, options ...oss.Option) (string, error)
}

type OSSConfig struct {
	// Endpoint such as oss-cn-hangzhou.aliyuncs.com.
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	// Domain is an optional custom or CDN domain for public URLs.
	Domain string
}

// OSSProvider exports to an Aliyun OSS bucket.
type OSSProvider struct {
	bucket ossBucket
	domain string
}

func NewOSSProvider(cfg OSSConfig) (*OSSProvider, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("oss provider requires endpoint and bucket")
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", cfg.Bucket, err)
	}

	return newOSSProvider(bucket, ossDomain(cfg)), nil
}

func newOSSProvider(bucket ossBucket, domain string) *OSSProvider {
	return &OSSProvider{bucket: bucket, domain: strings.TrimRight(domain, "/")}
}

func ossDomain(cfg OSSConfig) string {
	if cfg.Domain == "" {
		return fmt.Sprintf("https://%s.%s", cfg.Bucket, cfg.Endpoint)
	}
	if !strings.HasPrefix(cfg.Domain, "http") {
		return "https://" + cfg.Domain
	}
	return cfg.Domain
}

func (p *OSSProvider) Name() string { return "oss" }

// The SDK calls are not context aware; ctx is only checked before each call.

func (p *OSSProvider) Upload(ctx context.Context, input UploadInput) (UploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return UploadOutput{}, err
	}

	key := objectPath(input.Folder, input.Filename)
	var opts []oss.Option
	if input.ContentType != "" {
		opts = append(opts, oss.ContentType(input.ContentType))
	}
	if err := p.bucket.PutObject(key, input.File, opts...); err != nil {
		return UploadOutput{}, fmt.Errorf("failed to upload to OSS: %w", err)
	}

	return UploadOutput{
		URL:      p.domain + "/" + key,
		Filename: key[strings.LastIndexByte(key, '/')+1:],
		Size:     input.Size,
	}, nil
}

func (p *OSSProvider) Delete(ctx context.Context, input DeleteInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.bucket.DeleteObject(objectPath(input.Folder, input.Filename)); err != nil {
		return fmt.Errorf("failed to delete from OSS: %w", err)
	}
	return nil
}

func (p *OSSProvider) GetURL(ctx context.Context, input GetURLInput) (string, error) {
	return p.domain + "/" + objectPath(input.Folder, input.Filename), nil
}

// GetSignedURL returns a time-limited GET URL for a private bucket.
func (p *OSSProvider) GetSignedURL(ctx context.Context, input GetURLInput, expiry time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sec := int64(expiry.Seconds())
	if sec <= 0 {
		sec = 3600
	}
	url, err := p.bucket.SignURL(objectPath(input.Folder, input.Filename), oss.HTTPGet, sec)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL: %w", err)
	}
	return url, nil
}

func (p *OSSProvider) Exists(ctx context.Context, input GetURLInput) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.bucket.IsObjectExist(objectPath(input.Folder, input.Filename))
}
