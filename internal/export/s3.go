package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the part of *s3.Client the destination uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads snapshots to an S3-compatible bucket. A "{date}"
// placeholder in the key expands to the UTC upload date, which keeps one
// snapshot per day instead of overwriting a single object.
type S3Destination struct {
	client objectPutter
	bucket string
	key    string
	now    func() time.Time
}

// NewS3Destination creates an S3 destination. A non-empty endpoint
// switches to path-style addressing for MinIO and similar servers.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 destination needs a bucket and a key")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Destination(client, bucket, key), nil
}

func newS3Destination(client objectPutter, bucket, key string) *S3Destination {
	return &S3Destination{client: client, bucket: bucket, key: key, now: time.Now}
}

func (d *S3Destination) Name() string { return "s3" }

// objectKey returns the key a snapshot taken at t is stored under.
func (d *S3Destination) objectKey(t time.Time) string {
	return strings.ReplaceAll(d.key, "{date}", t.UTC().Format(time.DateOnly))
}

// Write stores data as one JSONL object.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	at := d.now()
	key := d.objectKey(at)
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"exported-at": at.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put object s3://%s/%s: %w", d.bucket, key, err)
	}
	return nil
}
