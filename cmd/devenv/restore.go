package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sjawhar/devenv/internal/dateparse"
	"github.com/sjawhar/devenv/internal/restore"
	"github.com/sjawhar/devenv/internal/s3url"
	"github.com/sjawhar/devenv/internal/ui"
)

var (
	restoreOpts   restore.Options
	sessionsAfter string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a previously captured backup onto this machine",
	Long: `restore downloads a manifest from --base (or reads one from
--manifest-file), clones any repository missing on disk, pins every
workspace to its recorded revision, and restores loose files and
symlinks relative to the manifest's recorded root directory.

If --name is omitted, restore lists the available backups for
--machine instead of restoring anything.

Examples:
  devenv restore --base s3://my-bucket/backups/alice --machine laptop
  devenv restore --base s3://my-bucket/backups/alice --machine laptop --name 2026-01-20T10-00-00Z
`,
	Run: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreOpts.Base, "base", "", "s3://bucket/prefix source (required unless --manifest-file is given)")
	restoreCmd.Flags().StringVar(&restoreOpts.Name, "name", "", "backup name (omit to list available backups)")
	restoreCmd.Flags().StringVar(&restoreOpts.Machine, "machine", "", "machine name the backup was captured under")
	restoreCmd.Flags().StringVar(&restoreOpts.ManifestFile, "manifest-file", "", "read the manifest from a local file instead of --base")
	restoreCmd.Flags().StringVar(&restoreOpts.ClaudeDirDestination, "claude-dir-destination", "", "directory to restore Claude Code sessions into")
	restoreCmd.Flags().StringVar(&restoreOpts.OpenCodeDirDestination, "opencode-dir-destination", "", "directory to restore OpenCode sessions into")
	restoreCmd.Flags().StringVar(&sessionsAfter, "sessions-after", "", "only restore agent session files modified after this date/time")
	restoreCmd.Flags().BoolVar(&restoreOpts.Force, "force", false, "overwrite existing files, symlinks, and workspaces")
	restoreCmd.Flags().BoolVar(&restoreOpts.DryRun, "dry-run", false, "report what would be restored without writing anything")
}

func runRestore(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fail("devenv restore: %v", err)
	}
	if restoreOpts.Base == "" {
		restoreOpts.Base = cfg.Base
	}
	if restoreOpts.Machine == "" {
		restoreOpts.Machine = cfg.Machine
	}
	if restoreOpts.ClaudeDirDestination == "" {
		restoreOpts.ClaudeDirDestination = cfg.ClaudeDirSource
	}
	if restoreOpts.OpenCodeDirDestination == "" {
		restoreOpts.OpenCodeDirDestination = cfg.OpenCodeDirSource
	}

	ctx, cancel, err := withDeadline(cmd.Context())
	if err != nil {
		fail("devenv restore: %v", err)
	}
	defer cancel()

	if restoreOpts.Base == "" && restoreOpts.ManifestFile == "" {
		fail("devenv restore: --base or --manifest-file is required")
	}

	bucket, basePrefix, err := s3url.Parse(restoreOpts.Base)
	if restoreOpts.ManifestFile == "" && err != nil {
		fail("devenv restore: %v", err)
	}
	store, err := newStore(ctx, bucket)
	if err != nil {
		fail("devenv restore: %v", err)
	}

	if restoreOpts.Name == "" && restoreOpts.ManifestFile == "" {
		names, err := restore.ListBackups(ctx, store, basePrefix, restoreOpts.Machine)
		if err != nil {
			fail("devenv restore: %v", err)
		}
		if len(names) == 0 {
			fmt.Fprintln(os.Stderr, "no backups found for machine", restoreOpts.Machine)
			return
		}
		fmt.Fprintln(os.Stderr, "available backups:")
		for _, n := range names {
			fmt.Fprintln(os.Stderr, " ", n)
		}
		return
	}

	if sessionsAfter != "" {
		t, err := dateparse.Parse(sessionsAfter, time.Now())
		if err != nil {
			fail("devenv restore: %v", err)
		}
		restoreOpts.SessionsAfter = &t
	}

	o := &restore.Orchestrator{Store: store, Logger: logSink.For("restore")}
	result, err := o.Run(ctx, restoreOpts)
	if err != nil {
		fail("devenv restore: %v", err)
	}

	if result.Manifest.AgentInstructions != "" {
		fmt.Fprintln(os.Stderr, ui.Block("agent instructions", result.Manifest.AgentInstructions))
	}

	if restoreOpts.DryRun {
		fmt.Fprintln(os.Stderr, ui.Accent(fmt.Sprintf(
			"dry run: would restore %d repos, %d files, %d symlinks",
			len(result.Manifest.Workspaces), len(result.Manifest.Files), len(result.Manifest.Symlinks))))
		return
	}

	fmt.Fprintln(os.Stderr, ui.Accent(fmt.Sprintf(
		"restored %d repos (%d cloned), %d files, %d symlinks, %d agent files",
		len(result.Manifest.Workspaces), len(result.ClonedRepos),
		result.FilesRestored, result.SymlinksCreated, result.AgentFilesA+result.AgentFilesB)))

	if !o.Errors.Empty() {
		fmt.Fprintln(os.Stderr, ui.Error(o.Errors.Summary()))
		os.Exit(1)
	}
}
