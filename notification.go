package s3installer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// RouteKind is the destination kind of a bucket notification route.
type RouteKind int

const (
	RouteKindTopic RouteKind = iota
	RouteKindFunction
	RouteKindQueue
	RouteKindEventBridge
)

func (k RouteKind) String() string {
	switch k {
	case RouteKindTopic:
		return "topic"
	case RouteKindFunction:
		return "function"
	case RouteKindQueue:
		return "queue"
	case RouteKindEventBridge:
		return "eventbridge"
	default:
		return fmt.Sprintf("RouteKind(%d)", int(k))
	}
}

const objectCreatedEventPrefix = "s3:ObjectCreated:"

// KeyFilter is the object key filter of a route. Nil fields mean no rule.
type KeyFilter struct {
	Prefix *string
	Suffix *string
}

// Route is a notification binding already configured on a bucket.
type Route struct {
	Kind   RouteKind
	ID     string
	Target string
	Events []string
	Filter *KeyFilter
}

// IsObjectCreated reports whether the route fires on any object-create event.
func (r *Route) IsObjectCreated() bool {
	for _, event := range r.Events {
		if strings.HasPrefix(event, objectCreatedEventPrefix) {
			return true
		}
	}
	return false
}

// PrefixFilter returns the value of the route's prefix filter rule.
func (r *Route) PrefixFilter() (string, bool) {
	if r.Filter == nil || r.Filter.Prefix == nil {
		return "", false
	}
	return *r.Filter.Prefix, true
}

// TargetName returns the short name of the route target, e.g. the topic name
// or function name. Falls back to the raw target if it is not an ARN.
func (r *Route) TargetName() string {
	a, err := arn.Parse(r.Target)
	if err != nil {
		return r.Target
	}
	if name, ok := strings.CutPrefix(a.Resource, "function:"); ok {
		return name
	}
	return a.Resource
}

// BucketNotification is the notification configuration of one bucket.
type BucketNotification struct {
	Bucket string
	Routes []*Route
}

// IsConfigured reports whether any of the notification kinds is present.
func (n *BucketNotification) IsConfigured() bool {
	return n != nil && len(n.Routes) > 0
}

// RoutesOf returns the routes of the given kind, in API order.
func (n *BucketNotification) RoutesOf(kind RouteKind) []*Route {
	if n == nil {
		return nil
	}
	routes := make([]*Route, 0, len(n.Routes))
	for _, route := range n.Routes {
		if route.Kind == kind {
			routes = append(routes, route)
		}
	}
	return routes
}

// NewBucketNotification converts a GetBucketNotificationConfiguration response.
func NewBucketNotification(bucket string, output *s3.GetBucketNotificationConfigurationOutput) *BucketNotification {
	n := &BucketNotification{
		Bucket: bucket,
		Routes: make([]*Route, 0),
	}
	if output == nil {
		return n
	}
	for _, cfg := range output.TopicConfigurations {
		n.Routes = append(n.Routes, newRoute(RouteKindTopic, cfg.Id, cfg.TopicArn, cfg.Events, cfg.Filter))
	}
	for _, cfg := range output.LambdaFunctionConfigurations {
		n.Routes = append(n.Routes, newRoute(RouteKindFunction, cfg.Id, cfg.LambdaFunctionArn, cfg.Events, cfg.Filter))
	}
	for _, cfg := range output.QueueConfigurations {
		n.Routes = append(n.Routes, newRoute(RouteKindQueue, cfg.Id, cfg.QueueArn, cfg.Events, cfg.Filter))
	}
	if output.EventBridgeConfiguration != nil {
		n.Routes = append(n.Routes, &Route{Kind: RouteKindEventBridge})
	}
	return n
}

func newRoute(kind RouteKind, id, target *string, events []types.Event, filter *types.NotificationConfigurationFilter) *Route {
	return &Route{
		Kind:   kind,
		ID:     aws.ToString(id),
		Target: aws.ToString(target),
		Events: Map(events, func(e types.Event) string { return string(e) }),
		Filter: newKeyFilter(filter),
	}
}

func newKeyFilter(filter *types.NotificationConfigurationFilter) *KeyFilter {
	if filter == nil || filter.Key == nil || len(filter.Key.FilterRules) == 0 {
		return nil
	}
	kf := &KeyFilter{}
	for _, rule := range filter.Key.FilterRules {
		value := aws.ToString(rule.Value)
		switch {
		case strings.EqualFold(string(rule.Name), string(types.FilterRuleNamePrefix)):
			kf.Prefix = aws.String(value)
		case strings.EqualFold(string(rule.Name), string(types.FilterRuleNameSuffix)):
			kf.Suffix = aws.String(value)
		}
	}
	return kf
}

// S3NotificationClient is the interface for reading bucket notification configuration.
// This is satisfied by *s3.Client.
type S3NotificationClient interface {
	GetBucketNotificationConfiguration(ctx context.Context, params *s3.GetBucketNotificationConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketNotificationConfigurationOutput, error)
}

func logRoute(ctx context.Context, msg string, bucket string, route *Route, args ...any) {
	prefix, _ := route.PrefixFilter()
	attrs := []any{
		"bucket", bucket,
		"kind", route.Kind.String(),
		"id", coalesce(route.ID, "-"),
		"target", coalesce(route.Target, "-"),
		"prefix", coalesce(prefix, "-"),
	}
	slog.DebugContext(ctx, msg, append(attrs, args...)...)
}
