package s3installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// S3Client is the subset of the S3 API the installer uses.
// This is satisfied by *s3.Client.
type S3Client interface {
	S3NotificationClient
	S3ObjectGetter
	S3ObjectPutter
}

// App reconciles declared targets against live bucket notifications.
type App struct {
	env       *Environment
	policy    MatchPolicy
	client    S3Client
	inspector *Inspector
	uploader  *S3Uploader
}

// InstallOption contains options for the install command.
type InstallOption struct {
	Output string `help:"output path or s3:// URI of the terraform variables file" default:"lariat.auto.tfvars.json" env:"S3INSTALLER_OUTPUT"`
}

// PlanOption contains options for the plan command.
type PlanOption struct {
	Output io.Writer `kong:"-"`
}

// New creates an App. The environment is validated before anything else so
// that a missing account id fails without touching the network.
func New(env *Environment, policy MatchPolicy, client S3Client) (*App, error) {
	if err := env.Restrict(); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = LiteralPrefixPolicy{}
	}
	return &App{
		env:       env,
		policy:    policy,
		client:    client,
		inspector: NewInspector(client, env.AccountID),
		uploader:  NewS3Uploader(client),
	}, nil
}

// LoadTargetConfig loads the target configuration, fetching s3:// locations
// with the App's client.
func (app *App) LoadTargetConfig(ctx context.Context, path string) (*TargetConfig, error) {
	return LoadTargetConfig(ctx, path, app.client)
}

// Reconcile inspects every declared bucket and classifies its prefixes.
// Any lookup failure aborts the whole run.
func (app *App) Reconcile(ctx context.Context, cfg *TargetConfig) (*Result, error) {
	targets := cfg.Targets()
	buckets := Map(targets, func(t *BucketTarget) string { return t.Bucket })
	slog.InfoContext(ctx, "inspecting target buckets", "buckets", buckets, "account_id", app.env.AccountID)
	existing, err := app.inspector.InspectAll(ctx, buckets)
	if err != nil {
		return nil, fmt.Errorf("inspect buckets: %w", err)
	}
	result, err := Reconcile(ctx, targets, existing, app.policy)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	return result, nil
}

// Install reconciles and writes the terraform variables file.
func (app *App) Install(ctx context.Context, cfg *TargetConfig, opt InstallOption) error {
	result, err := app.Reconcile(ctx, cfg)
	if err != nil {
		return err
	}
	output := coalesce(opt.Output, DefaultTFVarsPath)
	vars := NewTFVars(app.env, result)
	slog.InfoContext(ctx, "passing configuration through to terraform",
		"output", output,
		"target_buckets", vars.TargetS3Buckets,
	)
	return WriteTFVars(ctx, output, vars, app.uploader)
}

// Plan reconciles and renders the result without writing anything.
func (app *App) Plan(ctx context.Context, cfg *TargetConfig, opt PlanOption) error {
	result, err := app.Reconcile(ctx, cfg)
	if err != nil {
		return err
	}
	w := opt.Output
	if w == nil {
		w = os.Stdout
	}
	return RenderPlan(w, result)
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	awsOpts := make([]func(*config.LoadOptions) error, 0)
	if region != "" {
		awsOpts = append(awsOpts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return *aws.NewConfig(), err
	}
	return awsCfg, nil
}
