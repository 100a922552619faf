package s3installer

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ObjectPutter is the interface for writing an object to S3.
// This is satisfied by *s3.Client.
type S3ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader uploads generated files to Amazon S3.
type S3Uploader struct {
	client S3ObjectPutter
}

// NewS3Uploader creates a new S3Uploader.
func NewS3Uploader(client S3ObjectPutter) *S3Uploader {
	return &S3Uploader{
		client: client,
	}
}

// UploadInput contains parameters for uploading a file to S3.
type UploadInput struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
}

// UploadOutput contains the result of an upload operation.
type UploadOutput struct {
	S3URI string
	Size  int64
}

// Upload uploads data to S3 and returns the S3 URI.
func (u *S3Uploader) Upload(ctx context.Context, input *UploadInput) (*UploadOutput, error) {
	putInput := &s3.PutObjectInput{
		Bucket:        aws.String(input.Bucket),
		Key:           aws.String(input.Key),
		Body:          bytes.NewReader(input.Body),
		ContentLength: aws.Int64(int64(len(input.Body))),
	}
	if input.ContentType != "" {
		putInput.ContentType = aws.String(input.ContentType)
	}
	if _, err := u.client.PutObject(ctx, putInput); err != nil {
		return nil, fmt.Errorf("upload to s3://%s/%s: %w", input.Bucket, input.Key, err)
	}
	return &UploadOutput{
		S3URI: fmt.Sprintf("s3://%s/%s", input.Bucket, input.Key),
		Size:  int64(len(input.Body)),
	}, nil
}

// parseS3URI splits s3://bucket/key. ok is false for any other location.
func parseS3URI(location string) (bucket, key string, ok bool) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme != "s3" {
		return "", "", false
	}
	return u.Host, strings.TrimLeft(u.Path, "/"), true
}
