// Package s3installer prepares the Terraform input for monitoring S3 prefixes.
//
// The declared targets (bucket -> prefixes) are read from a YAML file and
// compared with the live notification configuration of every bucket. Each
// declared prefix ends up either covered by an existing object-create route
// (an SNS topic or a Lambda function) or uncovered, meaning terraform must
// create a new route for it.
//
// # Usage
//
// For CLI usage, create a [CLI] instance and call Run:
//
//	var cli s3installer.CLI
//	ctx := context.Background()
//	exitCode := cli.Run(ctx)
//
// For programmatic usage, create an [App] instance:
//
//	app, _ := s3installer.New(env, s3installer.LiteralPrefixPolicy{}, s3.NewFromConfig(awsCfg))
//	cfg, _ := app.LoadTargetConfig(ctx, "s3_agent.yaml")
//	result, _ := app.Reconcile(ctx, cfg)
//
// # Matching
//
// Whether a route's prefix filter covers a declared prefix is decided by a
// [MatchPolicy]. The default [LiteralPrefixPolicy] requires the filter value
// to start with the declared prefix. [PatternPolicy] treats declared prefixes
// as regular expressions, and [ExprPolicy] evaluates a CEL expression.
//
// # Output
//
// [TFVars] is written as lariat.auto.tfvars.json, or uploaded to S3 when the
// output is an s3:// URI. Credentials from the environment are passed through
// unchanged.
package s3installer
