package s3installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Inspector reads the live notification configuration of buckets owned by
// a single AWS account.
type Inspector struct {
	client    S3NotificationClient
	accountID string
}

// NewInspector creates an Inspector. Every lookup asserts that the bucket
// is owned by accountID, so a bucket name that collides with another
// account's bucket fails instead of being inspected.
func NewInspector(client S3NotificationClient, accountID string) *Inspector {
	return &Inspector{
		client:    client,
		accountID: accountID,
	}
}

// Inspect fetches the notification configuration of one bucket.
func (i *Inspector) Inspect(ctx context.Context, bucket string) (*BucketNotification, error) {
	slog.DebugContext(ctx, "get bucket notification configuration", "bucket", bucket, "expected_owner", i.accountID)
	output, err := i.client.GetBucketNotificationConfiguration(ctx, &s3.GetBucketNotificationConfigurationInput{
		Bucket:              aws.String(bucket),
		ExpectedBucketOwner: aws.String(i.accountID),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) {
			if ae.ErrorCode() == "AccessDenied" {
				return nil, fmt.Errorf("get notification configuration of bucket %s: access denied, check that the bucket is owned by account %s: %w", bucket, i.accountID, err)
			}
			return nil, fmt.Errorf("get notification configuration of bucket %s: %s: %w", bucket, ae.ErrorCode(), err)
		}
		return nil, fmt.Errorf("get notification configuration of bucket %s: %w", bucket, err)
	}
	n := NewBucketNotification(bucket, output)
	slog.InfoContext(ctx, "bucket notification configuration",
		"bucket", bucket,
		"topics", len(n.RoutesOf(RouteKindTopic)),
		"functions", len(n.RoutesOf(RouteKindFunction)),
		"queues", len(n.RoutesOf(RouteKindQueue)),
		"eventbridge", len(n.RoutesOf(RouteKindEventBridge)) > 0,
	)
	return n, nil
}

// InspectAll inspects the buckets one at a time. The first failure aborts
// the whole lookup and no partial result is returned.
func (i *Inspector) InspectAll(ctx context.Context, buckets []string) (map[string]*BucketNotification, error) {
	notifications := make(map[string]*BucketNotification, len(buckets))
	for _, bucket := range buckets {
		if _, ok := notifications[bucket]; ok {
			continue
		}
		n, err := i.Inspect(ctx, bucket)
		if err != nil {
			return nil, err
		}
		notifications[bucket] = n
	}
	return notifications, nil
}
