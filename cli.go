package s3installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fatih/color"
	"github.com/mashiike/slogutils"
)

// CLI is the command-line interface for s3installer.
//
// Use the Run method to execute the CLI:
//
//	var cli s3installer.CLI
//	ctx := context.Background()
//	exitCode := cli.Run(ctx)
//
// Available commands:
//   - install: Write the terraform variables file (default)
//   - plan: Show which prefixes are covered and which need a new route
//   - validate: Validate the target configuration file
type CLI struct {
	LogLevel    string           `help:"log level" default:"info" env:"S3INSTALLER_LOG_LEVEL"`
	LogFormat   string           `help:"log format" default:"text" enum:"text,json" env:"S3INSTALLER_LOG_FORMAT"`
	LogColor    bool             `help:"enable color output" default:"true" env:"S3INSTALLER_LOG_COLOR" negatable:""`
	Version     kong.VersionFlag `help:"show version"`
	Config      string           `help:"path or URL (s3://, http(s)://) of the target configuration" default:"s3_agent.yaml" env:"S3INSTALLER_CONFIG"`
	Match       MatchOption      `embed:"" prefix:"match-"`
	Environment `embed:""`

	Install  InstallOption  `cmd:"" help:"reconcile bucket notifications and write the terraform variables file" default:"1"`
	Plan     PlanOption     `cmd:"" help:"show which prefixes already have a notification route and which need a new one"`
	Validate ValidateOption `cmd:"" help:"validate the target configuration file"`
}

// ValidateOption contains options for the validate command.
type ValidateOption struct {
	Config string `arg:"" name:"config-file" optional:"" help:"path to the target configuration file (overrides --config)"`
}

// Run parses command-line arguments and executes the appropriate command.
// Returns 0 on success, 1 on error.
func (c *CLI) Run(ctx context.Context) int {
	// kong resolves env tags while parsing, so the dotenv file goes first.
	if err := LoadDotenv(dotenvPath()); err != nil {
		fmt.Fprintln(os.Stderr, "s3installer:", err)
		return 1
	}
	k := kong.Parse(c,
		kong.Name("s3installer"),
		kong.Description("s3installer reconciles monitored S3 prefixes with existing bucket notifications and writes terraform variables."),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
	)
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		k.Fatalf("invalid log level: %s", c.LogLevel)
	}
	logger := newLogger(logLevel, c.LogFormat, c.LogColor)
	slog.SetDefault(logger)
	if err := c.run(ctx, k.Command()); err != nil {
		slog.Error("runtime error", "details", err)
		return 1
	}
	return 0
}

func (c *CLI) run(ctx context.Context, cmd string) error {
	// validate command doesn't need the environment or AWS
	if cmd == "validate" || cmd == "validate <config-file>" {
		return c.runValidate(ctx)
	}
	if err := c.Environment.Restrict(); err != nil {
		return err
	}
	policy, err := NewMatchPolicy(c.Match)
	if err != nil {
		return fmt.Errorf("match policy: %w", err)
	}
	awsCfg, err := loadAWSConfig(ctx, c.Environment.Region)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	app, err := New(&c.Environment, policy, s3.NewFromConfig(awsCfg))
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	cfg, err := app.LoadTargetConfig(ctx, c.Config)
	if err != nil {
		return err
	}
	switch cmd {
	case "install", "":
		return app.Install(ctx, cfg, c.Install)
	case "plan":
		return app.Plan(ctx, cfg, c.Plan)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (c *CLI) runValidate(ctx context.Context) error {
	path := coalesce(c.Validate.Config, c.Config, DefaultConfigPath)
	var client S3ObjectGetter
	if _, _, ok := parseS3URI(path); ok {
		awsCfg, err := loadAWSConfig(ctx, c.Environment.Region)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}
	slog.InfoContext(ctx, "validating target configuration", "path", path)
	cfg, err := LoadTargetConfig(ctx, path, client)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	for _, target := range cfg.Targets() {
		slog.InfoContext(ctx, "bucket validated", "bucket", target.Bucket, "prefixes", target.Prefixes)
	}
	fmt.Println("✓ Configuration is valid")
	return nil
}

func newLogger(level slog.Level, format string, c bool) *slog.Logger {
	var f func(io.Writer, *slog.HandlerOptions) slog.Handler
	switch format {
	case "json":
		f = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewJSONHandler(w, ho)
		}
	default:
		f = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewTextHandler(w, ho)
		}
	}
	var modifierFuncs map[slog.Level]slogutils.ModifierFunc
	if c {
		modifierFuncs = map[slog.Level]slogutils.ModifierFunc{
			slog.LevelDebug: slogutils.Color(color.FgBlack),
			slog.LevelInfo:  nil,
			slog.LevelWarn:  slogutils.Color(color.FgYellow),
			slog.LevelError: slogutils.Color(color.FgRed, color.Bold),
		}
	}
	middleware := slogutils.NewMiddleware(
		f,
		slogutils.MiddlewareOptions{
			Writer:        os.Stderr,
			ModifierFuncs: modifierFuncs,
			HandlerOptions: &slog.HandlerOptions{
				Level:     level,
				AddSource: level == slog.LevelDebug,
			},
		},
	)
	return slog.New(middleware)
}
