// Package publish uploads finished archives so they can be fetched from
// somewhere other than the machine that built them.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Publisher stores an archive and returns a URL it can be downloaded from.
type Publisher interface {
	Publish(ctx context.Context, runID, archivePath string) (url string, err error)
}

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads archives to <bucket>/<prefix>/<runID>/<name> and
// returns a presigned GET URL.
type S3Publisher struct {
	Client  ObjectAPI
	Presign func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	Bucket  string
	Prefix  string
	Expiry  time.Duration
}

// NewS3Publisher loads the default AWS config (env, shared config, IMDS).
func NewS3Publisher(ctx context.Context, bucket, prefix string, expiry time.Duration) (*S3Publisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	presigner := s3.NewPresignClient(client)
	return &S3Publisher{
		Client: client,
		Presign: func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
			return GeneratePresignedURL(ctx, presigner, bucket, key, expiry)
		},
		Bucket: bucket,
		Prefix: prefix,
		Expiry: expiry,
	}, nil
}

// Key returns the object key used for an archive.
func (p *S3Publisher) Key(runID, archivePath string) string {
	return path.Join(p.Prefix, runID, filepath.Base(archivePath))
}

// Publish uploads archivePath and presigns it.
func (p *S3Publisher) Publish(ctx context.Context, runID, archivePath string) (string, error) {
	key := p.Key(runID, archivePath)

	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat archive: %w", err)
	}

	log.Debug().Str("bucket", p.Bucket).Str("key", key).Int64("bytes", info.Size()).Msg("Uploading archive to S3")

	_, err = p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(p.Bucket),
		Key:                aws.String(key),
		Body:               f,
		ContentLength:      aws.Int64(info.Size()),
		ContentType:        aws.String("application/zip"),
		ContentDisposition: aws.String(fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(archivePath))),
	})
	if err != nil {
		return "", fmt.Errorf("upload archive to S3: %w", err)
	}

	url, err := p.Presign(ctx, p.Bucket, key, p.Expiry)
	if err != nil {
		return "", err
	}

	log.Info().Str("bucket", p.Bucket).Str("key", key).Msg("Archive uploaded to S3")
	return url, nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, presignClient *s3.PresignClient, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
