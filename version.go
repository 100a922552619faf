package s3installer

// Version is overwritten at build time via -ldflags.
var Version = "current"
