package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/and161185/msgstore/internal/model"
)

// S3API is the subset of *s3.Client used by S3.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Config configures the S3 client.
type S3Config struct {
	Region       string
	Endpoint     string // custom endpoint (MinIO etc.), empty for AWS
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// NewS3Client builds an S3 client. Static credentials are used when both keys
// are set, otherwise the default credential chain applies.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.UsePathStyle
	}), nil
}

// S3 stores blobs as objects in a bucket, optionally under a key prefix.
// The mime type is kept as the object content type.
type S3 struct {
	client S3API
	bucket string
	prefix string
	log    *zap.Logger
}

// NewS3 returns an S3-backed store.
func NewS3(client S3API, bucket, prefix string, log *zap.Logger) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix, log: log}
}

// Init checks that the bucket is reachable.
func (s *S3) Init(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %s: %w", s.bucket, err)
	}
	return nil
}

// StoreData uploads data under name.
func (s *S3) StoreData(ctx context.Context, name, mime string, data []byte) (string, error) {
	return s.StoreFile(ctx, name, mime, bytes.NewReader(data))
}

// StoreFile uploads r under name. Readers that cannot seek are buffered in
// memory first because request signing needs the content length.
func (s *S3) StoreFile(ctx context.Context, name, mime string, r io.Reader) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read blob %q: %w", name, err)
		}
		body = bytes.NewReader(data)
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   body,
	}
	if mime != "" {
		in.ContentType = aws.String(mime)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put blob %q: %w", name, err)
	}
	s.log.Debug("blob stored", zap.String("name", name), zap.String("mime", mime), zap.String("bucket", s.bucket))
	return s.location(name), nil
}

// Get returns the object stored under name, or nil if there is none.
func (s *S3) Get(ctx context.Context, name string, withData bool) (*model.Blob, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	b := &model.Blob{Name: name, Location: s.location(name)}
	if !withData {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(name)),
		})
		if isMissing(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		b.Mime = aws.ToString(out.ContentType)
		b.Size = aws.ToInt64(out.ContentLength)
		return b, nil
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if isMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	if b.Data, err = io.ReadAll(out.Body); err != nil {
		return nil, fmt.Errorf("read blob %q: %w", name, err)
	}
	b.Mime = aws.ToString(out.ContentType)
	b.Size = int64(len(b.Data))
	b.Digest = Digest(b.Data)
	return b, nil
}

func (s *S3) key(name string) string { return s.prefix + name }

func (s *S3) location(name string) string { return "s3://" + s.bucket + "/" + s.key(name) }

func isMissing(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}
