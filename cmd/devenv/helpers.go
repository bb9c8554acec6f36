package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sjawhar/devenv/internal/config"
	"github.com/sjawhar/devenv/internal/objectstore"
)

// loadConfig layers cmd's own flags over the config file, per
// internal/config's priority order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Flags(), flagConfigFile)
}

// withDeadline derives a context bounded by --timeout seconds.
func withDeadline(parent context.Context) (context.Context, context.CancelFunc, error) {
	if flagTimeout <= 0 {
		return nil, nil, fmt.Errorf("invalid --timeout %d: must be a positive number of seconds", flagTimeout)
	}
	ctx, cancel := context.WithTimeout(parent, time.Duration(flagTimeout)*time.Second)
	return ctx, cancel, nil
}

// newStore builds the S3-backed object-store client for bucket.
func newStore(ctx context.Context, bucket string) (objectstore.Client, error) {
	return objectstore.NewS3Client(ctx, objectstore.S3Config{Bucket: bucket})
}
