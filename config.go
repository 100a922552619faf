package s3installer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
)

// DefaultConfigPath is the target configuration read when --config is not given.
const DefaultConfigPath = "s3_agent.yaml"

// TargetConfig is the declared set of monitored locations. Both top-level
// keys are required; databases is not interpreted beyond being a mapping.
//
//	buckets:
//	  my-bucket:
//	    - prefix: raw/
//	    - prefix: curated/
//	databases: {}
type TargetConfig struct {
	Buckets   map[string][]*PrefixConfig `yaml:"buckets"`
	Databases any                        `yaml:"databases"`
}

// PrefixConfig is one monitored location inside a bucket.
type PrefixConfig struct {
	Prefix *string `yaml:"prefix"`
}

// BucketTarget is a bucket and the prefixes declared for it.
type BucketTarget struct {
	Bucket   string
	Prefixes []string
}

// Targets returns the declared buckets sorted by name. Duplicate prefixes
// within a bucket are collapsed, keeping first-seen order.
func (cfg *TargetConfig) Targets() []*BucketTarget {
	names := lo.Keys(cfg.Buckets)
	slices.Sort(names)
	return Map(names, func(name string) *BucketTarget {
		prefixes := make([]string, 0, len(cfg.Buckets[name]))
		for _, p := range cfg.Buckets[name] {
			if p != nil && p.Prefix != nil {
				prefixes = append(prefixes, *p.Prefix)
			}
		}
		return &BucketTarget{
			Bucket:   name,
			Prefixes: lo.Uniq(prefixes),
		}
	})
}

// Restrict validates the shape of the configuration.
func (cfg *TargetConfig) Restrict() error {
	if cfg.Buckets == nil {
		return &ConfigError{Key: "buckets", Reason: "is required"}
	}
	if cfg.Databases == nil {
		return &ConfigError{Key: "databases", Reason: "is required"}
	}
	if _, ok := cfg.Databases.(map[string]any); !ok {
		return &ConfigError{Key: "databases", Reason: "must be a mapping"}
	}
	names := lo.Keys(cfg.Buckets)
	slices.Sort(names)
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return &ConfigError{Key: "buckets", Reason: "bucket name must not be empty"}
		}
		prefixes := cfg.Buckets[name]
		if prefixes == nil {
			return &ConfigError{Key: "buckets." + name, Reason: "must be a list of prefixes"}
		}
		for i, p := range prefixes {
			if p == nil || p.Prefix == nil {
				return &ConfigError{Key: fmt.Sprintf("buckets.%s[%d]", name, i), Reason: "prefix is required"}
			}
		}
	}
	return nil
}

// ParseTargetConfig parses and validates a configuration from a reader.
func ParseTargetConfig(r io.Reader) (*TargetConfig, error) {
	var cfg TargetConfig
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse target config: %w", err)
	}
	if err := cfg.Restrict(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// S3ObjectGetter is the interface for reading an object from S3.
// This is satisfied by *s3.Client.
type S3ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoadTargetConfig loads configuration from a local path, file://, http(s)://
// or s3:// location. client may be nil when path is not an s3:// URI.
func LoadTargetConfig(ctx context.Context, path string, client S3ObjectGetter) (*TargetConfig, error) {
	content, err := fetchConfig(ctx, path, client)
	if err != nil {
		return nil, fmt.Errorf("%s load failed: %w", path, err)
	}
	cfg, err := ParseTargetConfig(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%s load failed: %w", path, err)
	}
	return cfg, nil
}

func fetchConfig(ctx context.Context, path string, client S3ObjectGetter) ([]byte, error) {
	u, err := url.Parse(path)
	if err != nil {
		return os.ReadFile(filepath.Clean(path))
	}
	switch u.Scheme {
	case "http", "https":
		return fetchConfigFromHTTP(ctx, u)
	case "s3":
		return fetchConfigFromS3(ctx, u, client)
	case "file":
		return os.ReadFile(filepath.Clean(u.Path))
	case "":
		return os.ReadFile(filepath.Clean(path))
	default:
		return nil, fmt.Errorf("scheme %s is not supported", u.Scheme)
	}
}

func fetchConfigFromHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	slog.InfoContext(ctx, "fetching target config", "url", u.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: HTTP %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func fetchConfigFromS3(ctx context.Context, u *url.URL, client S3ObjectGetter) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is not configured")
	}
	bucket, key := u.Host, strings.TrimLeft(u.Path, "/")
	slog.InfoContext(ctx, "fetching target config", "bucket", bucket, "key", key)
	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from S3: %w", err)
	}
	defer output.Body.Close()
	return io.ReadAll(output.Body)
}
