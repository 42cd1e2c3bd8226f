package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3API 是 S3Store 用到的 S3 客户端子集
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// S3Options 构造 S3 客户端的附加选项
type S3Options struct {
	// EndpointURL 自定义 endpoint（MinIO / LocalStack）
	EndpointURL string
	// UsePathStyle 使用 path-style 寻址
	UsePathStyle bool
}

// NewS3Client 基于 aws.Config 创建 S3 客户端。
// SDK 内置重试被关闭，读取重试统一由轮询侧决定。
func NewS3Client(awsCfg aws.Config, opts S3Options) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.Retryer = aws.NopRetryer{}
	})
}

// S3Store 基于 S3 的 Store 实现
type S3Store struct {
	client S3API
	logger *zap.Logger
}

// NewS3Store 创建 S3Store
func NewS3Store(client S3API, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{
		client: client,
		logger: logger.With(zap.String("component", "objectstore.s3")),
	}
}

// Put 实现 Store
func (s *S3Store) Put(ctx context.Context, loc Location, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(loc.Bucket),
		Key:           aws.String(loc.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", loc, err)
	}
	s.logger.Debug("object written",
		zap.String("location", loc.String()),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Get 实现 Store，NoSuchKey / 404 映射为 ErrNotFound
func (s *S3Store) Get(ctx context.Context, loc Location) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("get %s: %w", loc, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", loc, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return body, nil
}

// Ping 实现 Store
func (s *S3Store) Ping(ctx context.Context, bucket string) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		case "NoSuchBucket":
			return false
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
