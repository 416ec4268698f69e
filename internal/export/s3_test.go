package export

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Destination_Write(t *testing.T) {
	fake := &fakePutter{}
	d := newS3Destination(fake, "snapshots", "workq/{date}/queries.jsonl")
	d.now = func() time.Time { return time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("", -2*3600)) }

	if err := d.Write(context.Background(), []byte("{}\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := aws.ToString(fake.in.Bucket); got != "snapshots" {
		t.Errorf("bucket = %q", got)
	}
	// 23:30 at UTC-2 is already the next day in UTC.
	if got := aws.ToString(fake.in.Key); got != "workq/2024-03-10/queries.jsonl" {
		t.Errorf("key = %q", got)
	}
	if got := aws.ToString(fake.in.ContentType); got != "application/x-ndjson" {
		t.Errorf("content type = %q", got)
	}
	if got := fake.in.Metadata["exported-at"]; got != "2024-03-10T01:30:00Z" {
		t.Errorf("exported-at = %q", got)
	}
	if fake.body != "{}\n" {
		t.Errorf("body = %q", fake.body)
	}
}

func TestS3Destination_FixedKey(t *testing.T) {
	fake := &fakePutter{}
	d := newS3Destination(fake, "b", "workq/queries.jsonl")
	if err := d.Write(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if got := aws.ToString(fake.in.Key); got != "workq/queries.jsonl" {
		t.Errorf("key = %q", got)
	}
}

func TestS3Destination_Error(t *testing.T) {
	fake := &fakePutter{err: errors.New("access denied")}
	d := newS3Destination(fake, "b", "k.jsonl")
	err := d.Write(context.Background(), []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "s3://b/k.jsonl") || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("err = %v", err)
	}
}

func TestNewS3Destination_RequiresBucketAndKey(t *testing.T) {
	if _, err := NewS3Destination(context.Background(), "", "k", "us-east-1", ""); err == nil {
		t.Error("expected error for empty bucket")
	}
}
