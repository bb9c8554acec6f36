package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sjawhar/devenv/internal/backup"
	"github.com/sjawhar/devenv/internal/lockfile"
	"github.com/sjawhar/devenv/internal/s3url"
	"github.com/sjawhar/devenv/internal/ui"
)

var backupOpts backup.Options

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Capture the environment under --root into an object-store backup",
	Long: `backup walks --root for jj repositories, loose configuration files, and
symlinks, records every repository's current revision, and uploads
everything alongside a manifest to --base.

Examples:
  devenv backup --root ~/work --base s3://my-bucket/backups/alice
  devenv backup --root ~/work --base s3://my-bucket/backups/alice --dry-run
`,
	Run: runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&backupOpts.RootDir, "root", "", "root directory to capture (required)")
	backupCmd.Flags().StringVar(&backupOpts.Base, "base", "", "s3://bucket/prefix destination (required)")
	backupCmd.Flags().StringVar(&backupOpts.Name, "name", "", "backup name (default: current UTC timestamp)")
	backupCmd.Flags().StringVar(&backupOpts.Machine, "machine", "", "machine name (default: sanitized hostname)")
	backupCmd.Flags().StringVar(&backupOpts.AgentInstructions, "agent-instructions", "", "free-form text echoed to whoever restores this backup")
	backupCmd.Flags().StringVar(&backupOpts.ClaudeDirSource, "claude-dir-source", "", "Claude Code config directory to sync")
	backupCmd.Flags().StringVar(&backupOpts.OpenCodeDirSource, "opencode-dir-source", "", "OpenCode config directory to sync")
	backupCmd.Flags().BoolVar(&backupOpts.IncludeFiles, "include-files", true, "include loose files and symlinks in the manifest")
	backupCmd.Flags().BoolVar(&backupOpts.DryRun, "dry-run", false, "report what would be captured without uploading anything")
	_ = backupCmd.MarkFlagRequired("root")
	_ = backupCmd.MarkFlagRequired("base")
}

func runBackup(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fail("devenv backup: %v", err)
	}
	if backupOpts.Base == "" {
		backupOpts.Base = cfg.Base
	}
	if backupOpts.Machine == "" {
		backupOpts.Machine = cfg.Machine
	}
	if backupOpts.ClaudeDirSource == "" {
		backupOpts.ClaudeDirSource = cfg.ClaudeDirSource
	}
	if backupOpts.OpenCodeDirSource == "" {
		backupOpts.OpenCodeDirSource = cfg.OpenCodeDirSource
	}

	ctx, cancel, err := withDeadline(cmd.Context())
	if err != nil {
		fail("devenv backup: %v", err)
	}
	defer cancel()

	lock, err := lockfile.Acquire(ctx, backupOpts.RootDir)
	if err != nil {
		fail("devenv backup: %v", err)
	}
	defer lock.Release()

	bucket, _, err := s3url.Parse(backupOpts.Base)
	if err != nil {
		fail("devenv backup: %v", err)
	}
	store, err := newStore(ctx, bucket)
	if err != nil {
		fail("devenv backup: %v", err)
	}

	o := &backup.Orchestrator{Store: store, Logger: logSink.For("backup")}
	result, err := o.Run(ctx, backupOpts)
	if err != nil {
		fail("devenv backup: %v", err)
	}

	if backupOpts.DryRun {
		fmt.Fprintln(os.Stderr, ui.Accent(fmt.Sprintf(
			"dry run: %d repos, %d files would be captured", len(result.Manifest.Workspaces), result.FilesTried)))
		return
	}

	fmt.Fprintln(os.Stderr, ui.Accent(fmt.Sprintf(
		"backed up %d repos, %d files, %d agent files to s3://%s/%s/%s/%s",
		len(result.Manifest.Workspaces), result.FilesTried,
		result.AgentFilesA+result.AgentFilesB,
		result.Bucket, result.Prefix, result.Manifest.Hostname, result.Name)))

	if !o.Errors.Empty() {
		fmt.Fprintln(os.Stderr, ui.Error(o.Errors.Summary()))
		os.Exit(1)
	}
}
