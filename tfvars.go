package s3installer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultTFVarsPath is picked up automatically by terraform in the working directory.
const DefaultTFVarsPath = "lariat.auto.tfvars.json"

// TFVars is the Terraform variables document produced by the installer.
// Maps are never nil so terraform always receives an object, possibly empty.
// Pass-through values that are unset are written as null, letting terraform
// fall back to the variable default.
type TFVars struct {
	LariatAPIKey                  *string                      `json:"lariat_api_key"`
	LariatApplicationKey          *string                      `json:"lariat_application_key"`
	LariatSinkAWSAccessKeyID      *string                      `json:"lariat_sink_aws_access_key_id"`
	LariatSinkAWSSecretAccessKey  *string                      `json:"lariat_sink_aws_secret_access_key"`
	AWSRegion                     *string                      `json:"aws_region"`
	TargetS3Buckets               []string                     `json:"target_s3_buckets"`
	S3NewNotificationPrefixes     map[string][]string          `json:"s3_new_notification_prefixes"`
	S3ExistingSNSNotifications    map[string]map[string]string `json:"s3_existing_sns_notifications"`
	S3ExistingLambdaNotifications map[string]map[string]string `json:"s3_existing_lambda_notifications"`
}

// NewTFVars builds the variables from the environment and a reconciliation result.
func NewTFVars(env *Environment, result *Result) *TFVars {
	vars := &TFVars{
		LariatAPIKey:                  nullable(env.LariatAPIKey),
		LariatApplicationKey:          nullable(env.LariatApplicationKey),
		LariatSinkAWSAccessKeyID:      nullable(env.SinkAccessKeyID),
		LariatSinkAWSSecretAccessKey:  nullable(env.SinkSecretAccessKey),
		AWSRegion:                     nullable(env.Region),
		TargetS3Buckets:               result.TargetBuckets(),
		S3NewNotificationPrefixes:     result.NewPrefixes(),
		S3ExistingSNSNotifications:    result.ExistingTopics(),
		S3ExistingLambdaNotifications: result.ExistingFunctions(),
	}
	if vars.TargetS3Buckets == nil {
		vars.TargetS3Buckets = []string{}
	}
	return vars
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MarshalIndent renders the document as indented JSON with a trailing newline.
func (v *TFVars) MarshalIndent() ([]byte, error) {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(bs, '\n'), nil
}

// WriteTFVars writes the document to a local path or to an s3:// URI.
// Local files are created with mode 0600 because they carry credentials.
func WriteTFVars(ctx context.Context, location string, vars *TFVars, uploader *S3Uploader) error {
	bs, err := vars.MarshalIndent()
	if err != nil {
		return fmt.Errorf("marshal tfvars: %w", err)
	}
	if bucket, key, ok := parseS3URI(location); ok {
		if uploader == nil {
			return fmt.Errorf("write %s: s3 uploader is not configured", location)
		}
		output, err := uploader.Upload(ctx, &UploadInput{
			Bucket:      bucket,
			Key:         key,
			Body:        bs,
			ContentType: "application/json",
		})
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "tfvars uploaded", "s3_uri", output.S3URI, "size", output.Size)
		return nil
	}
	path := filepath.Clean(location)
	if err := os.WriteFile(path, bs, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	slog.InfoContext(ctx, "tfvars written", "path", path, "size", len(bs))
	return nil
}
