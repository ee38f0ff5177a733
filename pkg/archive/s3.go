package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/Gobusters/ectologger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Ramsey-B/clover/pkg/models"
)

type Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // for S3-compatible stores
}

// ObjectPutter is the subset of *s3.Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes a JSON snapshot of every resource a run deletes.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger ectologger.Logger
}

func NewS3Archiver(ctx context.Context, cfg Config, logger ectologger.Logger) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewS3ArchiverWithClient(s3.NewFromConfig(awsCfg, opts...), cfg.Bucket, cfg.Prefix, logger), nil
}

func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string, logger ectologger.Logger) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Key is <prefix>/<keep id>/<run id>.json.
func (a *S3Archiver) Key(snapshot models.ArchiveSnapshot) string {
	return path.Join(a.prefix, snapshot.KeepID, snapshot.RunID+".json")
}

func (a *S3Archiver) Archive(ctx context.Context, snapshot models.ArchiveSnapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal archive snapshot: %w", err)
	}

	key := a.Key(snapshot)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"bucket":    a.bucket,
		"key":       key,
		"resources": len(snapshot.Resources),
	}).Info("Archived consolidated resources")
	return nil
}
