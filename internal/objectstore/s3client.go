package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the real Client implementation, backed by
// aws-sdk-go-v2's S3 service client plus its upload manager for
// multipart uploads; downloads stream GetObject bodies directly.
type S3Client struct {
	api      *s3.Client
	uploader *manager.Uploader
	bucket   string
	gate     *semGate
}

// S3Config configures a new S3Client.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for S3-compatible endpoints other than AWS
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// NewS3Client builds an S3Client from cfg, falling back to the SDK's
// default credential chain (env vars, shared config, instance role)
// when AccessKeyID is empty.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Client{
		api:      api,
		uploader: manager.NewUploader(api),
		bucket:   cfg.Bucket,
		gate:     newSemGate(MaxConcurrentOps),
	}, nil
}

func (c *S3Client) UploadFile(ctx context.Context, key, localPath string) error {
	if err := c.gate.acquire(ctx); err != nil {
		return err
	}
	defer c.gate.release()

	return withRetry(ctx, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		return err
	})
}

func (c *S3Client) UploadBytes(ctx context.Context, key string, data []byte) error {
	if err := c.gate.acquire(ctx); err != nil {
		return err
	}
	defer c.gate.release()

	return withRetry(ctx, func() error {
		_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return err
	})
}

func (c *S3Client) DownloadFile(ctx context.Context, key, localPath string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(localPath); err == nil {
			return ErrSkipped
		}
	}

	if err := c.gate.acquire(ctx); err != nil {
		return err
	}
	defer c.gate.release()

	return withRetry(ctx, func() error {
		out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()

		buf := make([]byte, DownloadChunkSize)
		_, err = io.CopyBuffer(f, out.Body, buf)
		return err
	})
}

func (c *S3Client) DownloadBytes(ctx context.Context, key string) ([]byte, error) {
	if err := c.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.release()

	var data []byte
	err := withRetry(ctx, func() error {
		out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	return data, err
}

func (c *S3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := c.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.release()

	var objects []ObjectInfo
	err := withRetry(ctx, func() error {
		objects = objects[:0]
		paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
			Bucket: aws.String(c.bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				lastModified := time.Time{}
				if obj.LastModified != nil {
					lastModified = *obj.LastModified
				}
				objects = append(objects, ObjectInfo{
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					LastModified: lastModified,
				})
			}
		}
		return nil
	})
	return objects, err
}
