package s3installer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"
)

// Coverage is a declared prefix that an existing route already serves.
type Coverage struct {
	Prefix string
	Route  *Route
}

// BucketResult partitions the declared prefixes of one bucket. Every declared
// prefix is either in Covered or in Uncovered, never both.
type BucketResult struct {
	Bucket     string
	Configured bool
	Covered    []*Coverage
	Uncovered  []string
}

// CoveredBy returns prefix -> route target for coverages of the given kind.
func (br *BucketResult) CoveredBy(kind RouteKind) map[string]string {
	m := make(map[string]string)
	for _, c := range br.Covered {
		if c.Route.Kind == kind {
			m[c.Prefix] = c.Route.Target
		}
	}
	return m
}

// Result is the outcome of a reconciliation, one entry per declared bucket.
type Result struct {
	Buckets []*BucketResult
}

// Bucket returns the result of the named bucket, or nil.
func (r *Result) Bucket(name string) *BucketResult {
	for _, br := range r.Buckets {
		if br.Bucket == name {
			return br
		}
	}
	return nil
}

// TargetBuckets returns the declared bucket names in sorted order.
func (r *Result) TargetBuckets() []string {
	buckets := Map(r.Buckets, func(br *BucketResult) string { return br.Bucket })
	slices.Sort(buckets)
	return buckets
}

// NewPrefixes returns bucket -> prefixes that need a new notification route.
// Buckets without uncovered prefixes are omitted.
func (r *Result) NewPrefixes() map[string][]string {
	m := make(map[string][]string)
	for _, br := range r.Buckets {
		if len(br.Uncovered) == 0 {
			continue
		}
		m[br.Bucket] = slices.Clone(br.Uncovered)
	}
	return m
}

// ExistingTopics returns bucket -> prefix -> topic ARN of covered prefixes.
func (r *Result) ExistingTopics() map[string]map[string]string {
	return r.existing(RouteKindTopic)
}

// ExistingFunctions returns bucket -> prefix -> function ARN of covered prefixes.
func (r *Result) ExistingFunctions() map[string]map[string]string {
	return r.existing(RouteKindFunction)
}

func (r *Result) existing(kind RouteKind) map[string]map[string]string {
	m := make(map[string]map[string]string)
	for _, br := range r.Buckets {
		covered := br.CoveredBy(kind)
		if len(covered) == 0 {
			continue
		}
		m[br.Bucket] = covered
	}
	return m
}

// Reconcile classifies every declared prefix as covered by an existing
// object-create route or uncovered. existing maps bucket name to its live
// notification configuration; a missing entry means no configuration.
//
// Only topic and function routes can cover a prefix. When a prefix is matched
// by both kinds the topic route wins, and among routes of the same kind the
// first one in API order wins.
//
// Declared prefixes are de-duplicated here, keeping first-seen order, so
// targets built by hand behave like those from [TargetConfig.Targets].
func Reconcile(ctx context.Context, targets []*BucketTarget, existing map[string]*BucketNotification, policy MatchPolicy) (*Result, error) {
	result := &Result{
		Buckets: make([]*BucketResult, 0, len(targets)),
	}
	for _, target := range targets {
		br, err := reconcileBucket(ctx, target, existing[target.Bucket], policy)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", target.Bucket, err)
		}
		slog.InfoContext(ctx, "reconciled bucket",
			"bucket", br.Bucket,
			"configured", br.Configured,
			"covered", len(br.Covered),
			"uncovered", len(br.Uncovered),
		)
		result.Buckets = append(result.Buckets, br)
	}
	return result, nil
}

func reconcileBucket(ctx context.Context, target *BucketTarget, n *BucketNotification, policy MatchPolicy) (*BucketResult, error) {
	prefixes := lo.Uniq(target.Prefixes)
	br := &BucketResult{
		Bucket:    target.Bucket,
		Covered:   make([]*Coverage, 0, len(prefixes)),
		Uncovered: make([]string, 0, len(prefixes)),
	}
	if !n.IsConfigured() {
		slog.InfoContext(ctx, "bucket has no notification configuration", "bucket", target.Bucket)
		br.Uncovered = append(br.Uncovered, prefixes...)
		return br, nil
	}
	br.Configured = true

	matched := map[RouteKind]map[string]*Route{
		RouteKindTopic:    make(map[string]*Route),
		RouteKindFunction: make(map[string]*Route),
	}
	for _, route := range n.Routes {
		matches, ok := matched[route.Kind]
		if !ok {
			logRoute(ctx, "route kind can not cover prefixes, skip", target.Bucket, route)
			continue
		}
		if !route.IsObjectCreated() {
			logRoute(ctx, "route is not for object-create events, skip", target.Bucket, route, "events", route.Events)
			continue
		}
		filter, ok := route.PrefixFilter()
		if !ok {
			slog.WarnContext(ctx, "route has no prefix filter, it is not treated as covering any prefix",
				"bucket", target.Bucket,
				"kind", route.Kind.String(),
				"id", coalesce(route.ID, "-"),
				"target", coalesce(route.Target, "-"),
			)
			continue
		}
		for _, prefix := range prefixes {
			if _, exists := matches[prefix]; exists {
				continue
			}
			ok, err := policy.Match(target.Bucket, prefix, filter)
			if err != nil {
				return nil, fmt.Errorf("match prefix %q with filter %q: %w", prefix, filter, err)
			}
			if ok {
				logRoute(ctx, "prefix matched", target.Bucket, route, "declared_prefix", prefix)
				matches[prefix] = route
			}
		}
	}

	for _, prefix := range prefixes {
		if route, ok := matched[RouteKindTopic][prefix]; ok {
			br.Covered = append(br.Covered, &Coverage{Prefix: prefix, Route: route})
			continue
		}
		if route, ok := matched[RouteKindFunction][prefix]; ok {
			br.Covered = append(br.Covered, &Coverage{Prefix: prefix, Route: route})
			continue
		}
		br.Uncovered = append(br.Uncovered, prefix)
	}
	return br, nil
}
