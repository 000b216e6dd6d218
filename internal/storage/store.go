// Package storage persists image blobs in an S3-compatible bucket and
// serves them back through a public base URL.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
}

type Store struct {
	cfg    Config
	client *s3.Client
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &Store{
		cfg:    cfg,
		client: s3.New(options),
	}, nil
}

// Upload stores the blob under the given key prefix and returns its public
// URL, which callers use as the blob reference.
func (s *Store) Upload(ctx context.Context, data []byte, contentType, prefix string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "image/png"
	}

	key := s.generateKey(prefix, contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key, nil
}

// Delete removes the blob behind a reference previously returned by Upload.
// It reports false without error for references outside this store's base
// URL.
func (s *Store) Delete(ctx context.Context, ref string) (bool, error) {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/"
	if !strings.HasPrefix(ref, base) {
		return false, nil
	}
	key := strings.TrimPrefix(ref, base)
	if key == "" {
		return false, nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("delete from s3: %w", err)
	}
	return true, nil
}

func (s *Store) generateKey(prefix, contentType string) string {
	ext := extensionFromContentType(contentType)
	now := time.Now().UTC()
	prefix = strings.Trim(prefix, "/")
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), uuid.NewString()+ext)
}

func extensionFromContentType(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
