package objectstorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.vocdoni.io/dvote/log"
)

const ownerMetadataKey = "owner"

// S3Config configures an S3 compatible bucket. Endpoint is only needed for
// non-AWS services such as MinIO.
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	// CreateBucket creates the bucket when it does not exist.
	CreateBucket bool
}

// S3Bucket stores objects in an S3 bucket.
type S3Bucket struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3Bucket connects to the bucket and checks that it exists.
func NewS3Bucket(ctx context.Context, conf *S3Config) (*S3Bucket, error) {
	if conf == nil || conf.Bucket == "" {
		return nil, fmt.Errorf("invalid S3 configuration")
	}
	opts := []func(*config.LoadOptions) error{}
	if conf.Region != "" {
		opts = append(opts, config.WithRegion(conf.Region))
	}
	if conf.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		o.UsePathStyle = conf.UsePathStyle
	})
	b := &S3Bucket{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   conf.Bucket,
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(conf.Bucket)}); err != nil {
		if !conf.CreateBucket {
			return nil, fmt.Errorf("cannot access bucket %s: %w", conf.Bucket, err)
		}
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(conf.Bucket)}); err != nil {
			return nil, fmt.Errorf("cannot create bucket %s: %w", conf.Bucket, err)
		}
		log.Infow("created object storage bucket", "bucket", conf.Bucket)
	}
	return b, nil
}

// PutObject implements Bucket.
func (b *S3Bucket) PutObject(ctx context.Context, obj *Object) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(b.bucket),
		Key:                aws.String(obj.Key),
		Body:               bytes.NewReader(obj.Data),
		ContentType:        aws.String(obj.ContentType),
		ContentDisposition: aws.String("inline"),
		Metadata:           map[string]string{ownerMetadataKey: obj.Owner},
	})
	return err
}

// GetObject implements Bucket.
func (b *S3Bucket) GetObject(ctx context.Context, key string) (*Object, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrorObjectNotFound
		}
		return nil, err
	}
	defer func() {
		if err := out.Body.Close(); err != nil {
			log.Warnw("cannot close object body", "key", key, "error", err)
		}
	}()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	obj := &Object{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Owner:       out.Metadata[ownerMetadataKey],
		Data:        data,
		CreatedAt:   aws.ToTime(out.LastModified),
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}
	return obj, nil
}

// DeleteObject implements Bucket.
func (b *S3Bucket) DeleteObject(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err
}
