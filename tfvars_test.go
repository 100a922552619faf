package s3installer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func testResult() *Result {
	return &Result{
		Buckets: []*BucketResult{
			{
				Bucket:     "plain-bucket",
				Configured: false,
				Uncovered:  []string{"logs/"},
			},
			{
				Bucket:     "curated-bucket",
				Configured: true,
				Covered: []*Coverage{
					{Prefix: "raw/", Route: &Route{Kind: RouteKindTopic, Target: "arn:aws:sns:us-east-1:111122223333:raw-events"}},
				},
				Uncovered: []string{"curated/"},
			},
			{
				Bucket:     "lambda-bucket",
				Configured: true,
				Covered: []*Coverage{
					{Prefix: "events/", Route: &Route{Kind: RouteKindFunction, Target: "arn:aws:lambda:us-east-1:111122223333:function:ingest"}},
				},
			},
		},
	}
}

func TestTFVarsMarshal(t *testing.T) {
	g := goldie.New(
		t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden.json"),
	)
	cases := []struct {
		name   string
		env    *Environment
		result *Result
	}{
		{name: "tfvars", env: testEnvironment(), result: testResult()},
		{name: "tfvars_empty", env: &Environment{AccountID: testAccountID}, result: &Result{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			bs, err := NewTFVars(c.env, c.result).MarshalIndent()
			require.NoError(t, err)
			g.Assert(t, c.name, bs)
		})
	}
}

func TestTFVarsKeys(t *testing.T) {
	bs, err := NewTFVars(testEnvironment(), testResult()).MarshalIndent()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(bs, &m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	require.ElementsMatch(t, []string{
		"lariat_api_key",
		"lariat_application_key",
		"lariat_sink_aws_access_key_id",
		"lariat_sink_aws_secret_access_key",
		"aws_region",
		"target_s3_buckets",
		"s3_new_notification_prefixes",
		"s3_existing_sns_notifications",
		"s3_existing_lambda_notifications",
	}, keys)
}

func TestTFVarsUnsetValuesAreNull(t *testing.T) {
	env := &Environment{AccountID: testAccountID, Region: "us-east-1", LariatAPIKey: "api-key"}
	bs, err := NewTFVars(env, &Result{}).MarshalIndent()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(bs, &m))
	require.Equal(t, "api-key", m["lariat_api_key"])
	require.Equal(t, "us-east-1", m["aws_region"])
	for _, key := range []string{
		"lariat_application_key",
		"lariat_sink_aws_access_key_id",
		"lariat_sink_aws_secret_access_key",
	} {
		v, ok := m[key]
		require.True(t, ok, "%s must be present", key)
		require.Nil(t, v, "%s must be null", key)
	}
}

func TestWriteTFVarsLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultTFVarsPath)
	vars := NewTFVars(testEnvironment(), testResult())
	require.NoError(t, WriteTFVars(context.Background(), path, vars, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	bs, err := os.ReadFile(path)
	require.NoError(t, err)
	expected, err := vars.MarshalIndent()
	require.NoError(t, err)
	require.Equal(t, string(expected), string(bs))
}

func TestWriteTFVarsS3(t *testing.T) {
	server, stub := NewS3Stub(t)
	stub.AddBucket("state-bucket", testAccountID, stubNotificationConfiguration{})
	vars := NewTFVars(testEnvironment(), testResult())
	uploader := NewS3Uploader(newStubS3Client(server))

	require.NoError(t, WriteTFVars(context.Background(), "s3://state-bucket/env/prod/"+DefaultTFVarsPath, vars, uploader))
	bs, ok := stub.Object("state-bucket", "env/prod/"+DefaultTFVarsPath)
	require.True(t, ok)
	expected, err := vars.MarshalIndent()
	require.NoError(t, err)
	require.Equal(t, string(expected), string(bs))

	err = WriteTFVars(context.Background(), "s3://missing-bucket/"+DefaultTFVarsPath, vars, uploader)
	require.Error(t, err)
	require.Contains(t, err.Error(), "upload to s3://missing-bucket/"+DefaultTFVarsPath)

	err = WriteTFVars(context.Background(), "s3://state-bucket/"+DefaultTFVarsPath, vars, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "s3 uploader is not configured")
}

func TestParseS3URI(t *testing.T) {
	cases := []struct {
		location string
		bucket   string
		key      string
		ok       bool
	}{
		{location: "s3://bucket/path/to/file.json", bucket: "bucket", key: "path/to/file.json", ok: true},
		{location: "s3://bucket/file.json", bucket: "bucket", key: "file.json", ok: true},
		{location: "lariat.auto.tfvars.json", ok: false},
		{location: "/tmp/lariat.auto.tfvars.json", ok: false},
		{location: "https://example.com/file.json", ok: false},
	}
	for _, c := range cases {
		bucket, key, ok := parseS3URI(c.location)
		require.Equal(t, c.ok, ok, c.location)
		require.Equal(t, c.bucket, bucket, c.location)
		require.Equal(t, c.key, key, c.location)
	}
}
